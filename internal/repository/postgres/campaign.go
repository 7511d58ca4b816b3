package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/service/campaign"
)

// CampaignRepo implements campaign.Repository against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignColumns = `
	id, name, template_id, config, status,
	total_count, sent_count, delivered_count, read_count, response_count, failed_count,
	scheduled_at, started_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	var cfg []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.TemplateID, &cfg, &c.Status,
		&c.Stats.Total, &c.Stats.Sent, &c.Stats.Delivered, &c.Stats.Read,
		&c.Stats.Responses, &c.Stats.Failed,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &c.Config); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM dispatch_campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := `SELECT ` + campaignColumns + ` FROM dispatch_campaigns`
	args := []interface{}{}
	idx := 1
	if f.Status != "" {
		q += fmt.Sprintf(" WHERE status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) ListByStatus(ctx context.Context, statuses ...domain.CampaignStatus) ([]domain.Campaign, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+campaignColumns+` FROM dispatch_campaigns
		 WHERE status = ANY($1) ORDER BY created_at ASC`, pq.Array(strs))
	if err != nil {
		return nil, fmt.Errorf("list campaigns by status: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	cfg, err := json.Marshal(c.Config)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO dispatch_campaigns (id, name, template_id, config, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
	`, c.ID, c.Name, c.TemplateID, cfg, c.Status)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) UpdateConfig(ctx context.Context, id string, cfg domain.SendingConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_campaigns SET config = $1, updated_at = NOW() WHERE id = $2
	`, data, id)
	if err != nil {
		return fmt.Errorf("update config: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

// UpdateStatus transitions the status and maintains started_at and
// completed_at in the same statement so the timestamps can never drift
// from the status that implies them.
func (r *CampaignRepo) UpdateStatus(ctx context.Context, id string, status domain.CampaignStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_campaigns SET
			status = $1,
			started_at = CASE WHEN $1 = 'running' AND started_at IS NULL THEN NOW() ELSE started_at END,
			completed_at = CASE WHEN $1 IN ('completed','cancelled') THEN NOW() ELSE completed_at END,
			updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) SetScheduledAt(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_campaigns SET scheduled_at = $1, updated_at = NOW() WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("set scheduled_at: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return nil
}

func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM dispatch_recipients WHERE campaign_id = $1`, id); err != nil {
		return fmt.Errorf("delete recipients: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM dispatch_campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrNotFound
	}
	return tx.Commit()
}
