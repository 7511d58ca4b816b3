package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/textflare/dispatch/internal/domain"
	"github.com/textflare/dispatch/internal/service/campaign"
)

// TemplateRepo implements campaign.TemplateRepository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) Get(ctx context.Context, id string) (*domain.Template, error) {
	t := &domain.Template{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, body, created_at, updated_at FROM dispatch_templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, campaign.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) List(ctx context.Context) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, body, created_at, updated_at
		FROM dispatch_templates ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		var t domain.Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Body, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_templates (id, name, body, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`, t.ID, t.Name, t.Body)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) Update(ctx context.Context, t *domain.Template) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_templates SET name = $1, body = $2, updated_at = NOW() WHERE id = $3
	`, t.Name, t.Body, t.ID)
	if err != nil {
		return fmt.Errorf("update template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrTemplateNotFound
	}
	return nil
}

func (r *TemplateRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM dispatch_templates WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return campaign.ErrTemplateNotFound
	}
	return nil
}
