package campaign

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-dispatch/internal/directory"
	"github.com/lib/pq"
)

func statusArray(ss []DistStatus) interface{} {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return pq.Array(out)
}

// Store persists campaigns and distributions.
type Store struct {
	db *sql.DB
}

// NewStore creates a campaign store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new campaign row.
func (s *Store) Create(ctx context.Context, c *Campaign) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO campaigns (
			id, owner, content_ref, category, status,
			total_recipients, sent_count, opened_count, daily_batch_size, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, $8)
	`, c.ID, c.Owner, c.ContentRef, c.Category, c.Status,
		c.TotalRecipients, c.DailyBatchSize, c.StartedAt)
	if err != nil {
		return fmt.Errorf("create campaign: %w", err)
	}
	return nil
}

// Get returns a campaign by id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	c := &Campaign{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner, content_ref, category, status,
		       total_recipients, sent_count, opened_count, daily_batch_size,
		       started_at, completed_at
		FROM campaigns WHERE id = $1
	`, id).Scan(&c.ID, &c.Owner, &c.ContentRef, &c.Category, &c.Status,
		&c.TotalRecipients, &c.SentCount, &c.OpenedCount, &c.DailyBatchSize,
		&c.StartedAt, &c.CompletedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

// ListByStatus returns campaigns in the given lifecycle state.
func (s *Store) ListByStatus(ctx context.Context, status Status) ([]Campaign, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, content_ref, category, status,
		       total_recipients, sent_count, opened_count, daily_batch_size,
		       started_at, completed_at
		FROM campaigns WHERE status = $1 ORDER BY started_at ASC
	`, status)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		var c Campaign
		if err := rows.Scan(&c.ID, &c.Owner, &c.ContentRef, &c.Category, &c.Status,
			&c.TotalRecipients, &c.SentCount, &c.OpenedCount, &c.DailyBatchSize,
			&c.StartedAt, &c.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SetStatus moves a campaign between lifecycle states, guarded by the
// expected current state. Returns false when the campaign was not in the
// expected state.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = $1 WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, fmt.Errorf("set campaign status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Finish marks a campaign terminal (completed or cancelled) and stamps
// completed_at.
func (s *Store) Finish(ctx context.Context, id uuid.UUID, to Status, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, completed_at = $2
		WHERE id = $3 AND status IN ('active', 'paused')
	`, to, at, id)
	if err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}
	return nil
}

// IncrementSent bumps the campaign's sent counter.
func (s *Store) IncrementSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET sent_count = sent_count + 1 WHERE id = $1`, id)
	return err
}

// IncrementOpened bumps the campaign's opened counter. Called on the first
// open per distribution only.
func (s *Store) IncrementOpened(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET opened_count = opened_count + 1 WHERE id = $1`, id)
	return err
}

// EnsureDistribution idempotently creates the (campaign, recipient)
// distribution row and returns it. Repeated calls return the existing row.
func (s *Store) EnsureDistribution(ctx context.Context, campaignID, recipientID uuid.UUID) (*Distribution, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO distributions (id, campaign_id, recipient_id, status, created_at)
		VALUES ($1, $2, $3, 'pending', NOW())
		ON CONFLICT (campaign_id, recipient_id) DO NOTHING
	`, uuid.New(), campaignID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("ensure distribution: %w", err)
	}
	return s.getDistributionByPair(ctx, campaignID, recipientID)
}

func (s *Store) getDistributionByPair(ctx context.Context, campaignID, recipientID uuid.UUID) (*Distribution, error) {
	d := &Distribution{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, recipient_id, status, sent_at, opened_at, clicked_at,
		       COALESCE(error_message, ''), created_at
		FROM distributions WHERE campaign_id = $1 AND recipient_id = $2
	`, campaignID, recipientID).Scan(&d.ID, &d.CampaignID, &d.RecipientID, &d.Status,
		&d.SentAt, &d.OpenedAt, &d.ClickedAt, &d.ErrorMessage, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution: %w", err)
	}
	return d, nil
}

// GetDistribution returns a distribution by id, or ErrNotFound.
func (s *Store) GetDistribution(ctx context.Context, id uuid.UUID) (*Distribution, error) {
	d := &Distribution{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, campaign_id, recipient_id, status, sent_at, opened_at, clicked_at,
		       COALESCE(error_message, ''), created_at
		FROM distributions WHERE id = $1
	`, id).Scan(&d.ID, &d.CampaignID, &d.RecipientID, &d.Status,
		&d.SentAt, &d.OpenedAt, &d.ClickedAt, &d.ErrorMessage, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get distribution: %w", err)
	}
	return d, nil
}

// FindLatestByAddress resolves the most recently sent distribution for a
// recipient address, for events that carry no distribution reference.
// Returns ErrNotFound when the address has no distributions.
func (s *Store) FindLatestByAddress(ctx context.Context, address string) (*Distribution, error) {
	d := &Distribution{}
	err := s.db.QueryRowContext(ctx, `
		SELECT d.id, d.campaign_id, d.recipient_id, d.status, d.sent_at, d.opened_at,
		       d.clicked_at, COALESCE(d.error_message, ''), d.created_at
		FROM distributions d
		JOIN recipients r ON r.id = d.recipient_id
		WHERE r.address = $1
		ORDER BY d.created_at DESC
		LIMIT 1
	`, address).Scan(&d.ID, &d.CampaignID, &d.RecipientID, &d.Status,
		&d.SentAt, &d.OpenedAt, &d.ClickedAt, &d.ErrorMessage, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find distribution by address: %w", err)
	}
	return d, nil
}

// AdvanceStatus moves a distribution forward along the status machine with
// a compare-and-set guarded by the allowed predecessor states. A downgrade
// or repeat attempt affects no rows and returns false — the silent no-op
// the ingestion path relies on under out-of-order webhooks.
func (s *Store) AdvanceStatus(ctx context.Context, id uuid.UUID, to DistStatus, at time.Time) (bool, error) {
	from, ok := allowedFrom[to]
	if !ok {
		return false, fmt.Errorf("no transition into status %q", to)
	}

	var stampCol string
	switch to {
	case DistSent:
		stampCol = "sent_at"
	case DistOpened:
		stampCol = "opened_at"
	case DistClicked:
		stampCol = "clicked_at"
	}

	query := `UPDATE distributions SET status = $1`
	args := []interface{}{to}
	if stampCol != "" {
		query += fmt.Sprintf(", %s = $2", stampCol)
		args = append(args, at)
	}
	query += fmt.Sprintf(" WHERE id = $%d AND status = ANY($%d)", len(args)+1, len(args)+2)
	args = append(args, id, statusArray(from))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("advance distribution status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkFailed records a dispatch failure with its error message. Only a
// pending distribution can fail; anything else is a no-op.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE distributions SET status = 'failed', error_message = $1
		WHERE id = $2 AND status = 'pending'
	`, errMsg, id)
	return err
}

// EligibleRecipients returns active recipients with the campaign's category
// that do not yet have a non-pending distribution for the campaign, in
// stable id order.
func (s *Store) EligibleRecipients(ctx context.Context, campaignID uuid.UUID, category string) ([]directory.Recipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.address, r.country, r.category, r.active
		FROM recipients r
		WHERE r.active = TRUE AND r.category = $2
		  AND NOT EXISTS (
			SELECT 1 FROM distributions d
			WHERE d.campaign_id = $1 AND d.recipient_id = r.id AND d.status <> 'pending'
		  )
		ORDER BY r.id ASC
	`, campaignID, category)
	if err != nil {
		return nil, fmt.Errorf("eligible recipients: %w", err)
	}
	defer rows.Close()

	var out []directory.Recipient
	for rows.Next() {
		var r directory.Recipient
		if err := rows.Scan(&r.ID, &r.Address, &r.Country, &r.Category, &r.Active); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
