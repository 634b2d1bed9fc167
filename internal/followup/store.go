// Package followup schedules, cancels, and fires reminder sends for
// recipients who have not engaged with their initial send.
package followup

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the follow-up task state. Sent, cancelled, and skipped are
// terminal; a task is cancelled, never deleted, on qualifying engagement.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskSent      TaskStatus = "sent"
	TaskCancelled TaskStatus = "cancelled"
	TaskSkipped   TaskStatus = "skipped"
)

// Task is one scheduled reminder send tied to a distribution.
type Task struct {
	ID             uuid.UUID
	CampaignID     uuid.UUID
	RecipientID    uuid.UUID
	DistributionID uuid.UUID
	SequenceNumber int
	ScheduledAt    time.Time
	Status         TaskStatus
	SentAt         *time.Time
	CreatedAt      time.Time
}

// Store persists follow-up tasks.
type Store struct {
	db *sql.DB
}

// NewStore creates a follow-up store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a pending task. A partial unique index on
// (campaign_id, recipient_id, sequence_number) WHERE status='pending'
// guarantees at most one live task per slot; a duplicate insert conflicts
// away silently.
func (s *Store) Create(ctx context.Context, t *Task) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO followup_tasks (
			id, campaign_id, recipient_id, distribution_id,
			sequence_number, scheduled_at, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, 'pending', NOW())
		ON CONFLICT DO NOTHING
	`, t.ID, t.CampaignID, t.RecipientID, t.DistributionID, t.SequenceNumber, t.ScheduledAt)
	if err != nil {
		return fmt.Errorf("create followup task: %w", err)
	}
	return nil
}

// ListDue returns pending tasks with scheduledAt ≤ now, oldest first,
// bounded to limit.
func (s *Store) ListDue(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, campaign_id, recipient_id, distribution_id,
		       sequence_number, scheduled_at, status, sent_at, created_at
		FROM followup_tasks
		WHERE status = 'pending' AND scheduled_at <= $1
		ORDER BY scheduled_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.CampaignID, &t.RecipientID, &t.DistributionID,
			&t.SequenceNumber, &t.ScheduledAt, &t.Status, &t.SentAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// finish moves a pending task into a terminal state. Cancelling an
// already-sent task affects no rows — the silent no-op required for the
// engagement/sweep race.
func (s *Store) finish(ctx context.Context, id uuid.UUID, to TaskStatus, sentAt *time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE followup_tasks SET status = $1, sent_at = $2
		WHERE id = $3 AND status = 'pending'
	`, to, sentAt, id)
	if err != nil {
		return false, fmt.Errorf("finish followup task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// MarkSent records a successful reminder dispatch.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return s.finish(ctx, id, TaskSent, &at)
}

// MarkSkipped records a failed dispatch. Single-shot policy: no retry.
func (s *Store) MarkSkipped(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.finish(ctx, id, TaskSkipped, nil)
}

// MarkCancelled cancels a single pending task.
func (s *Store) MarkCancelled(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.finish(ctx, id, TaskCancelled, nil)
}

// CancelForRecipient cancels all pending tasks for a (campaign, recipient)
// pair. Called synchronously from event ingestion on open/click.
func (s *Store) CancelForRecipient(ctx context.Context, campaignID, recipientID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE followup_tasks SET status = 'cancelled'
		WHERE campaign_id = $1 AND recipient_id = $2 AND status = 'pending'
	`, campaignID, recipientID)
	if err != nil {
		return 0, fmt.Errorf("cancel followups for recipient: %w", err)
	}
	return res.RowsAffected()
}

// BulkCancel cancels every pending task for a campaign in one statement.
func (s *Store) BulkCancel(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE followup_tasks SET status = 'cancelled'
		WHERE campaign_id = $1 AND status = 'pending'
	`, campaignID)
	if err != nil {
		return 0, fmt.Errorf("bulk cancel followups: %w", err)
	}
	return res.RowsAffected()
}
