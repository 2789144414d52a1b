package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/service/template"
)

const templateColumns = `id, owner_id, name, content, created_at, updated_at`

// TemplateRepo implements template.Repository against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func scanTemplate(row rowScanner) (*domain.Template, error) {
	var t domain.Template
	if err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Content, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TemplateRepo) Create(ctx context.Context, t *domain.Template) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO templates (id, owner_id, name, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.OwnerID, t.Name, t.Content, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) Get(ctx context.Context, ownerID, id string) (*domain.Template, error) {
	t, err := scanTemplate(r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+` FROM templates WHERE id = $1 AND owner_id = $2
	`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, template.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}

func (r *TemplateRepo) List(ctx context.Context, ownerID string) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+templateColumns+` FROM templates WHERE owner_id = $1 ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
