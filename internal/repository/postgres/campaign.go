package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/engage/internal/domain"
	"github.com/ignite/engage/internal/service/campaign"
)

const campaignColumns = `id, owner_id, template_id, name, subject, content, status,
	send_at, sent_at, recipient_count, created_at, updated_at`

// CampaignRepo implements campaign.Repository against PostgreSQL.
// Status guards are part of each UPDATE/DELETE predicate, so a concurrent
// writer can never slip between the check and the write.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*domain.Campaign, error) {
	var (
		c          domain.Campaign
		templateID sql.NullString
		sendAt     sql.NullTime
		sentAt     sql.NullTime
		recipients sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.OwnerID, &templateID, &c.Name, &c.Subject, &c.Content, &c.Status,
		&sendAt, &sentAt, &recipients, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if templateID.Valid {
		c.TemplateID = &templateID.String
	}
	if sendAt.Valid {
		c.SendAt = &sendAt.Time
	}
	if sentAt.Valid {
		c.SentAt = &sentAt.Time
	}
	if recipients.Valid {
		n := int(recipients.Int64)
		c.RecipientCount = &n
	}
	return &c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID))
	if err == sql.ErrNoRows {
		return nil, campaign.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, ownerID string, f campaign.ListFilter) ([]domain.Campaign, int, error) {
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

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count campaigns: %w", err)
	}

	q := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list campaigns: %w", err)
	}
	return out, total, nil
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, owner_id, template_id, name, subject, content, status,
			 send_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, c.ID, c.OwnerID, c.TemplateID, c.Name, c.Subject, c.Content, string(c.Status),
		c.SendAt, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Update applies the patch in one statement. A content edit carries the
// status guard in its WHERE clause; when no row comes back the campaign is
// re-read to tell a missing campaign from a locked one.
func (r *CampaignRepo) Update(ctx context.Context, ownerID, id string, p campaign.Patch, now time.Time) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		UPDATE campaigns SET
			name        = COALESCE($1, name),
			subject     = COALESCE($2, subject),
			content     = COALESCE($3, content),
			send_at     = COALESCE($4, send_at),
			template_id = COALESCE($5, template_id),
			updated_at  = $6
		WHERE id = $7 AND owner_id = $8
		  AND ($3::text IS NULL OR status NOT IN ('sending', 'sent'))
		RETURNING `+campaignColumns,
		p.Name, p.Subject, p.Content, p.SendAt, p.TemplateID, now, id, ownerID))
	if err == sql.ErrNoRows {
		current, getErr := r.Get(ctx, ownerID, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, campaign.ContentLocked(current.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("update campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaigns
		WHERE id = $1 AND owner_id = $2 AND status NOT IN ('sending', 'sent')
	`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if n > 0 {
		return nil
	}
	current, err := r.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}
	return campaign.InvalidState(campaign.OpDelete, current.Status)
}

func (r *CampaignRepo) TransitionStatus(ctx context.Context, ownerID, id string, from []domain.CampaignStatus, to domain.CampaignStatus, now time.Time) (*domain.Campaign, error) {
	allowed := make([]string, len(from))
	for i, s := range from {
		allowed[i] = string(s)
	}
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = $2
		WHERE id = $3 AND owner_id = $4 AND status = ANY($5)
		RETURNING `+campaignColumns,
		string(to), now, id, ownerID, pq.Array(allowed)))
	if err == sql.ErrNoRows {
		current, getErr := r.Get(ctx, ownerID, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, campaign.InvalidState(campaign.TransitionOp(to), current.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("transition campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) SetRecipientCount(ctx context.Context, ownerID, id string, n int, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET recipient_count = $1, updated_at = $2
		WHERE id = $3 AND owner_id = $4 AND recipient_count IS NULL
	`, n, now, id, ownerID)
	if err != nil {
		return fmt.Errorf("set recipient count: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set recipient count: %w", err)
	}
	if affected == 0 {
		// Already set, or missing.
		_, err = r.Get(ctx, ownerID, id)
		return err
	}
	return nil
}

func (r *CampaignRepo) Finish(ctx context.Context, ownerID, id string, status domain.CampaignStatus, sentAt *time.Time, now time.Time) (*domain.Campaign, error) {
	c, err := scanCampaign(r.db.QueryRowContext(ctx, `
		UPDATE campaigns SET
			status     = $1,
			sent_at    = COALESCE(sent_at, $2),
			updated_at = $3
		WHERE id = $4 AND owner_id = $5 AND status = 'sending'
		RETURNING `+campaignColumns,
		string(status), sentAt, now, id, ownerID))
	if err == sql.ErrNoRows {
		current, getErr := r.Get(ctx, ownerID, id)
		if getErr != nil {
			return nil, getErr
		}
		return nil, campaign.InvalidState(campaign.OpFinish, current.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("finish campaign: %w", err)
	}
	return c, nil
}
