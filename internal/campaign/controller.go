package campaign

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// DefaultWeeklyQuota is the sending quota assumed when a start request
// does not carry one: 9000/week, paced to 1286/day.
const DefaultWeeklyQuota = 9000

// RecipientCounter is the slice of the recipient directory the controller
// needs: how many recipients a category can reach.
type RecipientCounter interface {
	CountActive(ctx context.Context, category string) (int, error)
}

// FollowUpCanceller bulk-cancels pending follow-up tasks for a campaign.
// Satisfied by the follow-up manager; an interface here keeps the
// dependency pointing one way.
type FollowUpCanceller interface {
	BulkCancel(ctx context.Context, campaignID uuid.UUID) (int64, error)
}

// Controller owns the campaign lifecycle.
type Controller struct {
	store     *Store
	counter   RecipientCounter
	followups FollowUpCanceller
}

// NewController creates a campaign controller.
func NewController(store *Store, counter RecipientCounter, followups FollowUpCanceller) *Controller {
	return &Controller{store: store, counter: counter, followups: followups}
}

// Start creates an active campaign for the owner/category scope. A scope
// with zero eligible recipients declines the start as an explicit result
// value rather than an error.
func (c *Controller) Start(ctx context.Context, owner, contentRef, category string, weeklyQuota int) (*StartResult, error) {
	if weeklyQuota <= 0 {
		weeklyQuota = DefaultWeeklyQuota
	}

	total, err := c.counter.CountActive(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("count recipients: %w", err)
	}
	if total == 0 {
		return &StartResult{
			Declined: true,
			Reason:   fmt.Sprintf("no active recipients for category %q", category),
		}, nil
	}

	camp := &Campaign{
		ID:              uuid.New(),
		Owner:           owner,
		ContentRef:      contentRef,
		Category:        category,
		Status:          StatusActive,
		TotalRecipients: total,
		DailyBatchSize:  ceilDiv(weeklyQuota, 7),
		StartedAt:       time.Now().UTC(),
	}
	if err := c.store.Create(ctx, camp); err != nil {
		return nil, err
	}

	logger.Info("campaign started",
		"campaign_id", camp.ID, "category", category,
		"total_recipients", total, "daily_batch_size", camp.DailyBatchSize)

	return &StartResult{
		CampaignID:      camp.ID,
		TotalRecipients: total,
	}, nil
}

// Pause suspends batch selection for an active campaign. Distributions and
// follow-up tasks are untouched.
func (c *Controller) Pause(ctx context.Context, id uuid.UUID) error {
	ok, err := c.store.SetStatus(ctx, id, StatusActive, StatusPaused)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Resume reactivates a paused campaign.
func (c *Controller) Resume(ctx context.Context, id uuid.UUID) error {
	ok, err := c.store.SetStatus(ctx, id, StatusPaused, StatusActive)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidTransition
	}
	return nil
}

// Stop cancels the campaign and bulk-cancels its pending follow-ups in one
// operation.
func (c *Controller) Stop(ctx context.Context, id uuid.UUID) error {
	if err := c.store.Finish(ctx, id, StatusCancelled, time.Now().UTC()); err != nil {
		return err
	}
	cancelled, err := c.followups.BulkCancel(ctx, id)
	if err != nil {
		return fmt.Errorf("cancel follow-ups: %w", err)
	}
	logger.Info("campaign stopped", "campaign_id", id, "followups_cancelled", cancelled)
	return nil
}

// Complete marks a campaign finished once every recipient has been sent.
// Called by the scheduler tick.
func (c *Controller) Complete(ctx context.Context, id uuid.UUID) error {
	return c.store.Finish(ctx, id, StatusCompleted, time.Now().UTC())
}

// Status returns the campaign progress snapshot.
func (c *Controller) Status(ctx context.Context, id uuid.UUID) (*Snapshot, error) {
	camp, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		CampaignID:      camp.ID,
		Status:          camp.Status,
		TotalRecipients: camp.TotalRecipients,
		SentCount:       camp.SentCount,
		OpenedCount:     camp.OpenedCount,
	}
	if camp.TotalRecipients > 0 {
		snap.ProgressPct = float64(camp.SentCount) * 100 / float64(camp.TotalRecipients)
	}
	if camp.DailyBatchSize > 0 {
		snap.DaysRemaining = ceilDiv(camp.TotalRecipients-camp.SentCount, camp.DailyBatchSize)
	}
	return snap, nil
}

func ceilDiv(a, b int) int {
	if b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
