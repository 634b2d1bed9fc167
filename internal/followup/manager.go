package followup

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
)

// DefaultSweepBatchSize bounds how many due tasks one sweep processes.
const DefaultSweepBatchSize = 50

// DistributionReader re-reads the linked distribution during the sweep.
// Satisfied by *campaign.Store.
type DistributionReader interface {
	GetDistribution(ctx context.Context, id uuid.UUID) (*campaign.Distribution, error)
}

// Dispatcher sends one reminder. The implementation owns rendering and the
// bounded send timeout.
type Dispatcher interface {
	DispatchFollowUp(ctx context.Context, task *Task) error
}

// SweepStats aggregates one ProcessDue pass.
type SweepStats struct {
	Due       int
	Sent      int
	Cancelled int
	Skipped   int
}

// Manager is the follow-up state machine.
type Manager struct {
	store    *Store
	dists    DistributionReader
	dispatch Dispatcher
}

// NewManager creates a follow-up manager.
func NewManager(store *Store, dists DistributionReader, dispatch Dispatcher) *Manager {
	return &Manager{store: store, dists: dists, dispatch: dispatch}
}

// Schedule creates a pending task delayDays after the distribution's send.
// Distributions that were never sent schedule nothing.
func (m *Manager) Schedule(ctx context.Context, dist *campaign.Distribution, delayDays, sequenceNumber int) (*Task, error) {
	if dist.SentAt == nil {
		return nil, nil
	}
	task := &Task{
		ID:             uuid.New(),
		CampaignID:     dist.CampaignID,
		RecipientID:    dist.RecipientID,
		DistributionID: dist.ID,
		SequenceNumber: sequenceNumber,
		ScheduledAt:    dist.SentAt.Add(time.Duration(delayDays) * 24 * time.Hour),
		Status:         TaskPending,
	}
	if err := m.store.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// CancelForRecipient cancels all pending tasks for the pair.
func (m *Manager) CancelForRecipient(ctx context.Context, campaignID, recipientID uuid.UUID) (int64, error) {
	return m.store.CancelForRecipient(ctx, campaignID, recipientID)
}

// BulkCancel cancels every pending task for a campaign.
func (m *Manager) BulkCancel(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	return m.store.BulkCancel(ctx, campaignID)
}

// ProcessDue runs one sweep over due tasks. Before dispatching, each task
// re-reads its distribution: an engagement that landed between scheduling
// and now cancels the task instead of sending. This double-check closes
// the race where an open event and the sweep interleave. Dispatch failures
// mark the task skipped; nothing here retries, and no single task's
// failure stops the sweep.
func (m *Manager) ProcessDue(ctx context.Context, now time.Time, limit int) (SweepStats, error) {
	if limit <= 0 {
		limit = DefaultSweepBatchSize
	}

	var stats SweepStats
	tasks, err := m.store.ListDue(ctx, now, limit)
	if err != nil {
		return stats, err
	}
	stats.Due = len(tasks)

	for i := range tasks {
		task := &tasks[i]
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		dist, err := m.dists.GetDistribution(ctx, task.DistributionID)
		if err != nil {
			logger.Warn("followup sweep: distribution unreadable, skipping task",
				"task_id", task.ID, "error", err)
			continue
		}

		if dist.Status.Engaged() {
			if _, err := m.store.MarkCancelled(ctx, task.ID); err != nil {
				logger.Warn("followup sweep: cancel failed", "task_id", task.ID, "error", err)
				continue
			}
			stats.Cancelled++
			continue
		}

		if err := m.dispatch.DispatchFollowUp(ctx, task); err != nil {
			logger.Warn("followup dispatch failed, task skipped",
				"task_id", task.ID, "error", err)
			if _, err := m.store.MarkSkipped(ctx, task.ID); err != nil {
				logger.Error("followup sweep: mark skipped failed", "task_id", task.ID, "error", err)
			}
			stats.Skipped++
			continue
		}

		if _, err := m.store.MarkSent(ctx, task.ID, time.Now().UTC()); err != nil {
			logger.Error("followup sweep: mark sent failed", "task_id", task.ID, "error", err)
			continue
		}
		stats.Sent++
	}

	return stats, nil
}
