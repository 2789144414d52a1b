package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/service/subscriber"
)

const subscriberColumns = `id, owner_id, email, name, status, source, metadata, created_at, updated_at`

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// SubscriberRepo implements subscriber.Repository against PostgreSQL.
type SubscriberRepo struct{ db *sql.DB }

// NewSubscriberRepo creates a Postgres-backed subscriber repository.
func NewSubscriberRepo(db *sql.DB) *SubscriberRepo { return &SubscriberRepo{db: db} }

func scanSubscriber(row rowScanner) (*domain.Subscriber, error) {
	var (
		s    domain.Subscriber
		meta []byte
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Email, &s.Name, &s.Status, &s.Source, &meta, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode subscriber metadata: %w", err)
		}
	}
	return &s, nil
}

func marshalJSON(v map[string]any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (r *SubscriberRepo) Create(ctx context.Context, s *domain.Subscriber) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	meta, err := marshalJSON(s.Metadata)
	if err != nil {
		return fmt.Errorf("encode subscriber metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subscribers
			(id, owner_id, email, name, status, source, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.OwnerID, domain.NormalizeEmail(s.Email), s.Name, string(s.Status), s.Source, meta, s.CreatedAt, s.UpdatedAt)
	if isUniqueViolation(err) {
		return subscriber.ErrExists
	}
	if err != nil {
		return fmt.Errorf("create subscriber: %w", err)
	}
	return nil
}

func (r *SubscriberRepo) Get(ctx context.Context, ownerID, id string) (*domain.Subscriber, error) {
	s, err := scanSubscriber(r.db.QueryRowContext(ctx, `
		SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1 AND owner_id = $2
	`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get subscriber: %w", err)
	}
	return s, nil
}

func (r *SubscriberRepo) FindByEmail(ctx context.Context, ownerID, email string) (*domain.Subscriber, error) {
	s, err := scanSubscriber(r.db.QueryRowContext(ctx, `
		SELECT `+subscriberColumns+` FROM subscribers WHERE owner_id = $1 AND email = $2
	`, ownerID, domain.NormalizeEmail(email)))
	if err == sql.ErrNoRows {
		return nil, subscriber.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find subscriber: %w", err)
	}
	return s, nil
}

func (r *SubscriberRepo) List(ctx context.Context, ownerID string, f subscriber.ListFilter) ([]domain.Subscriber, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := ` WHERE owner_id = $1`
	args := []interface{}{ownerID}
	idx := 2
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (email ILIKE $%d OR name ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count subscribers: %w", err)
	}

	q := `SELECT ` + subscriberColumns + ` FROM subscribers` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	out, err := r.query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list subscribers: %w", err)
	}
	return out, total, nil
}

func (r *SubscriberRepo) ListActive(ctx context.Context, ownerID string) ([]domain.Subscriber, error) {
	out, err := r.query(ctx, `
		SELECT `+subscriberColumns+` FROM subscribers
		WHERE owner_id = $1 AND status = 'active'
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list active subscribers: %w", err)
	}
	return out, nil
}

func (r *SubscriberRepo) UpdateStatus(ctx context.Context, ownerID, id string, status domain.SubscriberStatus, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE subscribers SET status = $1, updated_at = $2 WHERE id = $3 AND owner_id = $4
	`, string(status), now, id, ownerID)
	if err != nil {
		return fmt.Errorf("update subscriber status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update subscriber status: %w", err)
	}
	if n == 0 {
		return subscriber.ErrNotFound
	}
	return nil
}

func (r *SubscriberRepo) query(ctx context.Context, q string, args ...interface{}) ([]domain.Subscriber, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
