package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/engage/internal/domain"
)

// ActivityRepo persists the per-user audit trail.
type ActivityRepo struct{ db *sql.DB }

// NewActivityRepo creates a Postgres-backed activity repository.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) Record(ctx context.Context, a *domain.ActivityLog) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	details, err := marshalJSON(a.Details)
	if err != nil {
		return fmt.Errorf("encode activity details: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, user_id, action, entity_type, entity_id, details, "timestamp")
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.UserID, a.Action, a.EntityType, a.EntityID, details, a.Timestamp)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

func (r *ActivityRepo) List(ctx context.Context, userID string, limit int) ([]domain.ActivityLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, action, entity_type, entity_id, details, "timestamp"
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY "timestamp" DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []domain.ActivityLog
	for rows.Next() {
		var (
			a        domain.ActivityLog
			entityID sql.NullString
			details  []byte
		)
		if err := rows.Scan(&a.ID, &a.UserID, &a.Action, &a.EntityType, &entityID, &details, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if entityID.Valid {
			a.EntityID = &entityID.String
		}
		if len(details) > 0 {
			if err := json.Unmarshal(details, &a.Details); err != nil {
				return nil, fmt.Errorf("decode activity details: %w", err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
