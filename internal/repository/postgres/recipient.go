package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/service/campaign"
)

// RecipientRepo implements campaign.RecipientRepository against PostgreSQL.
//
// Every Mark* method updates the recipient row and the owning campaign's
// counters inside one transaction. Resumability depends on this: after a
// crash, the counters and the recipient rows always agree, so the scheduler
// can pick up exactly where the last committed send left off.
type RecipientRepo struct{ db *sql.DB }

// NewRecipientRepo creates a Postgres-backed recipient repository.
func NewRecipientRepo(db *sql.DB) *RecipientRepo { return &RecipientRepo{db: db} }

const recipientColumns = `
	id, campaign_id, phone, variables, status, position,
	COALESCE(message_id,''), sent_at, delivered_at, read_at, created_at`

func scanRecipient(row interface{ Scan(...interface{}) error }) (*domain.Recipient, error) {
	r := &domain.Recipient{}
	var vars []byte
	err := row.Scan(
		&r.ID, &r.CampaignID, &r.Phone, &vars, &r.Status, &r.Position,
		&r.MessageID, &r.SentAt, &r.DeliveredAt, &r.ReadAt, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &r.Variables); err != nil {
			return nil, fmt.Errorf("decode variables: %w", err)
		}
	}
	return r, nil
}

func (r *RecipientRepo) Attach(ctx context.Context, campaignID string, recipients []domain.Recipient) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin attach: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dispatch_recipients (id, campaign_id, phone, variables, status, position, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	if err != nil {
		return fmt.Errorf("prepare attach: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recipients {
		vars, err := json.Marshal(rec.Variables)
		if err != nil {
			return fmt.Errorf("encode variables: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, campaignID, rec.Phone, vars,
			rec.Status, rec.Position, rec.CreatedAt); err != nil {
			return fmt.Errorf("insert recipient: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE dispatch_campaigns SET total_count = total_count + $1, updated_at = NOW()
		WHERE id = $2
	`, len(recipients), campaignID)
	if err != nil {
		return fmt.Errorf("bump total count: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return tx.Commit()
}

func (r *RecipientRepo) ListPending(ctx context.Context, campaignID string, limit int) ([]domain.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recipientColumns+` FROM dispatch_recipients
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY position ASC LIMIT $2
	`, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *RecipientRepo) CountPending(ctx context.Context, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM dispatch_recipients
		WHERE campaign_id = $1 AND status = 'pending'
	`, campaignID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (r *RecipientRepo) List(ctx context.Context, campaignID string, f campaign.RecipientFilter) ([]domain.Recipient, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	q := `SELECT ` + recipientColumns + ` FROM dispatch_recipients WHERE campaign_id = $1`
	args := []interface{}{campaignID}
	idx := 2
	if f.Status != "" {
		q += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY position ASC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// markAndCount runs a recipient update plus a campaign counter bump in one
// transaction.
func (r *RecipientRepo) markAndCount(ctx context.Context, recipientID, updateQ string, updateArgs []interface{}, counter string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, updateQ, updateArgs...)
	if err != nil {
		return fmt.Errorf("mark recipient: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrRecipientNotFound
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE dispatch_campaigns SET %s = %s + 1, updated_at = NOW()
		WHERE id = (SELECT campaign_id FROM dispatch_recipients WHERE id = $1)
	`, counter, counter), recipientID)
	if err != nil {
		return fmt.Errorf("bump %s: %w", counter, err)
	}
	return tx.Commit()
}

func (r *RecipientRepo) MarkSent(ctx context.Context, recipientID, messageID string, at time.Time) error {
	return r.markAndCount(ctx, recipientID, `
		UPDATE dispatch_recipients SET status = 'sent', message_id = $2, sent_at = $3
		WHERE id = $1
	`, []interface{}{recipientID, messageID, at}, "sent_count")
}

func (r *RecipientRepo) MarkFailed(ctx context.Context, recipientID string, at time.Time) error {
	return r.markAndCount(ctx, recipientID, `
		UPDATE dispatch_recipients SET status = 'failed' WHERE id = $1
	`, []interface{}{recipientID}, "failed_count")
}

func (r *RecipientRepo) FindByMessageID(ctx context.Context, messageID string) (*domain.Recipient, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recipientColumns+` FROM dispatch_recipients WHERE message_id = $1
	`, messageID)
	rec, err := scanRecipient(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrRecipientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find by message id: %w", err)
	}
	return rec, nil
}

func (r *RecipientRepo) MarkDelivered(ctx context.Context, recipientID string, at time.Time) error {
	return r.markAndCount(ctx, recipientID, `
		UPDATE dispatch_recipients SET status = 'delivered', delivered_at = $2
		WHERE id = $1
	`, []interface{}{recipientID, at}, "delivered_count")
}

func (r *RecipientRepo) MarkRead(ctx context.Context, recipientID string, at time.Time) error {
	return r.markAndCount(ctx, recipientID, `
		UPDATE dispatch_recipients SET status = 'read', read_at = $2
		WHERE id = $1
	`, []interface{}{recipientID, at}, "read_count")
}

func (r *RecipientRepo) MarkResponse(ctx context.Context, recipientID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_campaigns SET response_count = response_count + 1, updated_at = NOW()
		WHERE id = (SELECT campaign_id FROM dispatch_recipients WHERE id = $1)
	`, recipientID)
	if err != nil {
		return fmt.Errorf("bump response_count: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrRecipientNotFound
	}
	return nil
}
