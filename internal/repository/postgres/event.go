package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/service/analytics"
)

const eventColumns = `id, owner_id, campaign_id, subscriber_id, message_id, event, recipient, "timestamp", metadata`

// EventRepo implements the append-only event log against PostgreSQL.
// Deduplication rides on the partial unique index over
// (message_id, event, recipient).
type EventRepo struct{ db *sql.DB }

// NewEventRepo creates a Postgres-backed event repository.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func scanEvent(row rowScanner) (*domain.Event, error) {
	var (
		e            domain.Event
		campaignID   sql.NullString
		subscriberID sql.NullString
		messageID    sql.NullString
		meta         []byte
	)
	if err := row.Scan(&e.ID, &e.OwnerID, &campaignID, &subscriberID, &messageID,
		&e.Event, &e.Recipient, &e.Timestamp, &meta); err != nil {
		return nil, err
	}
	if campaignID.Valid {
		e.CampaignID = &campaignID.String
	}
	if subscriberID.Valid {
		e.SubscriberID = &subscriberID.String
	}
	if messageID.Valid {
		e.MessageID = &messageID.String
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("decode event metadata: %w", err)
		}
	}
	return &e, nil
}

// Append inserts e and reports whether a row was written.
func (r *EventRepo) Append(ctx context.Context, e *domain.Event) (bool, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	meta, err := marshalJSON(e.Metadata)
	if err != nil {
		return false, fmt.Errorf("encode event metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id, event, recipient) WHERE message_id IS NOT NULL DO NOTHING
	`, e.ID, e.OwnerID, e.CampaignID, e.SubscriberID, e.MessageID,
		string(e.Event), domain.NormalizeEmail(e.Recipient), e.Timestamp, meta)
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append event: %w", err)
	}
	return n > 0, nil
}

func (r *EventRepo) FindByMessageID(ctx context.Context, messageID string, event domain.EventType) (*domain.Event, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE message_id = $1 AND event = $2
		ORDER BY "timestamp" LIMIT 1
	`, messageID, string(event)))
	if err == sql.ErrNoRows {
		return nil, analytics.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event: %w", err)
	}
	return e, nil
}

func (r *EventRepo) Search(ctx context.Context, ownerID string, f domain.EventFilter) ([]domain.Event, error) {
	q := `SELECT ` + eventColumns + ` FROM events WHERE owner_id = $1`
	args := []interface{}{ownerID}
	idx := 2

	add := func(cond string, val interface{}) {
		q += fmt.Sprintf(" AND "+cond, idx)
		args = append(args, val)
		idx++
	}
	if f.CampaignID != "" {
		add("campaign_id = $%d", f.CampaignID)
	}
	if f.Event != "" {
		add("event = $%d", string(f.Event))
	}
	if f.Start != nil {
		add(`"timestamp" >= $%d`, *f.Start)
	}
	if f.End != nil {
		add(`"timestamp" <= $%d`, *f.End)
	}
	q += ` ORDER BY "timestamp" DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", idx)
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	return out, nil
}

func (r *EventRepo) CountByType(ctx context.Context, ownerID string) (map[domain.EventType]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event, COUNT(*) FROM events WHERE owner_id = $1 GROUP BY event
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.EventType]int)
	for rows.Next() {
		var (
			et domain.EventType
			n  int
		)
		if err := rows.Scan(&et, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		out[et] = n
	}
	return out, rows.Err()
}
