package scheduler

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/directory"
	"github.com/ignite/campaign-dispatch/internal/followup"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/timing"
)

// leaseTTL bounds how long a crashed worker can hold a campaign tick.
const leaseTTL = 10 * time.Minute

// CampaignStore is the campaign persistence surface the tick loop drives.
// Satisfied by *campaign.Store.
type CampaignStore interface {
	ListByStatus(ctx context.Context, status campaign.Status) ([]campaign.Campaign, error)
	Get(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
	EnsureDistribution(ctx context.Context, campaignID, recipientID uuid.UUID) (*campaign.Distribution, error)
	AdvanceStatus(ctx context.Context, id uuid.UUID, to campaign.DistStatus, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, errMsg string) error
	IncrementSent(ctx context.Context, id uuid.UUID) error
	Finish(ctx context.Context, id uuid.UUID, to campaign.Status, at time.Time) error
}

// PatternRecorder folds send events into the timing model. Satisfied by
// *timing.PatternStore.
type PatternRecorder interface {
	Record(ctx context.Context, scope timing.Scope, dayOfWeek, hourOfDay int, kind timing.EventKind) error
}

// FollowUpService schedules reminders after a send and sweeps due ones.
// Satisfied by *followup.Manager.
type FollowUpService interface {
	Schedule(ctx context.Context, dist *campaign.Distribution, delayDays, sequenceNumber int) (*followup.Task, error)
	ProcessDue(ctx context.Context, now time.Time, limit int) (followup.SweepStats, error)
}

// InitialSender delivers one campaign payload. Satisfied by *Dispatcher.
type InitialSender interface {
	SendInitial(ctx context.Context, c *campaign.Campaign, r *directory.Recipient, distributionID uuid.UUID) error
}

// LeaseFactory builds a per-key lease so horizontally scaled workers never
// double-dispatch the same campaign tick.
type LeaseFactory func(key string) distlock.Lease

// TickStats aggregates one Tick pass across all active campaigns.
type TickStats struct {
	Campaigns int
	Skipped   int
	Selected  int
	Sent      int
	Failed    int
	Completed int
	Sweep     followup.SweepStats
}

// Scheduler is the tick driver. Tick(now) is idempotent: selection is
// stable within a tick and every send flows through the forward-only
// distribution status machine, so a replayed tick re-sends nothing.
type Scheduler struct {
	campaigns CampaignStore
	selector  *BatchSelector
	dispatch  InitialSender
	patterns  PatternRecorder
	followups FollowUpService
	leases    LeaseFactory
	followCfg config.FollowUpConfig
	owner     string

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates the tick driver.
func NewScheduler(campaigns CampaignStore, selector *BatchSelector, dispatch InitialSender,
	patterns PatternRecorder, followups FollowUpService, leases LeaseFactory,
	followCfg config.FollowUpConfig, owner string) *Scheduler {
	return &Scheduler{
		campaigns: campaigns,
		selector:  selector,
		dispatch:  dispatch,
		patterns:  patterns,
		followups: followups,
		leases:    leases,
		followCfg: followCfg,
		owner:     owner,
	}
}

// Tick runs one scheduling pass: per active campaign (under its lease)
// select a batch, dispatch it, and complete the campaign once everyone has
// been sent to; then run one follow-up sweep under its own lease. Failures
// are counted, logged, and never abort the rest of the pass.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (TickStats, error) {
	var stats TickStats
	now = now.UTC()

	active, err := s.campaigns.ListByStatus(ctx, campaign.StatusActive)
	if err != nil {
		return stats, err
	}
	stats.Campaigns = len(active)

	for i := range active {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		s.tickCampaign(ctx, active[i].ID, now, &stats)
	}

	s.sweepFollowUps(ctx, now, &stats)

	log.Printf("[Scheduler] Tick done: %d campaigns (%d skipped), sent %d, failed %d, completed %d, followups due %d sent %d cancelled %d",
		stats.Campaigns, stats.Skipped, stats.Sent, stats.Failed, stats.Completed,
		stats.Sweep.Due, stats.Sweep.Sent, stats.Sweep.Cancelled)
	return stats, nil
}

func (s *Scheduler) tickCampaign(ctx context.Context, id uuid.UUID, now time.Time, stats *TickStats) {
	lease := s.leases("tick:campaign:" + id.String())
	ok, err := lease.Acquire(ctx)
	if err != nil {
		logger.Warn("tick: lease acquire failed", "campaign_id", id, "error", err)
		stats.Skipped++
		return
	}
	if !ok {
		stats.Skipped++
		return
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("tick: lease release failed", "campaign_id", id, "error", err)
		}
	}()

	// Re-read under the lease: a pause or stop that landed since listing
	// must win.
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		logger.Warn("tick: campaign read failed", "campaign_id", id, "error", err)
		stats.Skipped++
		return
	}
	if c.Status != campaign.StatusActive {
		stats.Skipped++
		return
	}

	batch, err := s.selector.SelectBatch(ctx, c, now, c.DailyBatchSize)
	if err != nil {
		logger.Warn("tick: batch selection failed", "campaign_id", id, "error", err)
		return
	}
	stats.Selected += len(batch)

	for i := range batch {
		if ctx.Err() != nil {
			return
		}
		if s.dispatchOne(ctx, c, &batch[i], now) {
			stats.Sent++
		} else {
			stats.Failed++
		}
	}

	// Completion check against the refreshed counters.
	c, err = s.campaigns.Get(ctx, id)
	if err != nil {
		logger.Warn("tick: completion check failed", "campaign_id", id, "error", err)
		return
	}
	if c.Status == campaign.StatusActive && c.SentCount >= c.TotalRecipients {
		if err := s.campaigns.Finish(ctx, id, campaign.StatusCompleted, now); err != nil {
			logger.Warn("tick: completion failed", "campaign_id", id, "error", err)
			return
		}
		stats.Completed++
		logger.Info("campaign completed", "campaign_id", id, "sent", c.SentCount)
	}
}

// dispatchOne sends to a single recipient. Any failure marks the
// distribution failed and moves on; nothing here retries.
func (s *Scheduler) dispatchOne(ctx context.Context, c *campaign.Campaign, r *directory.Recipient, now time.Time) bool {
	dist, err := s.campaigns.EnsureDistribution(ctx, c.ID, r.ID)
	if err != nil {
		logger.Warn("dispatch: distribution create failed",
			"campaign_id", c.ID, "recipient", r.Address, "error", err)
		return false
	}
	if dist.Status != campaign.DistPending {
		// Already handled in a previous tick; the selector raced a send.
		return true
	}

	if err := s.dispatch.SendInitial(ctx, c, r, dist.ID); err != nil {
		logger.Warn("dispatch: send failed",
			"campaign_id", c.ID, "recipient", r.Address, "error", err)
		if markErr := s.campaigns.MarkFailed(ctx, dist.ID, err.Error()); markErr != nil {
			logger.Error("dispatch: mark failed errored", "distribution_id", dist.ID, "error", markErr)
		}
		return false
	}

	sentAt := now
	applied, err := s.campaigns.AdvanceStatus(ctx, dist.ID, campaign.DistSent, sentAt)
	if err != nil {
		logger.Error("dispatch: status advance failed", "distribution_id", dist.ID, "error", err)
		return false
	}
	if !applied {
		// A concurrent event already moved this distribution forward.
		return true
	}
	dist.Status = campaign.DistSent
	dist.SentAt = &sentAt

	if err := s.campaigns.IncrementSent(ctx, c.ID); err != nil {
		logger.Error("dispatch: sent counter failed", "campaign_id", c.ID, "error", err)
	}

	scope := timing.Scope{Owner: s.owner, Country: r.Country, Category: c.Category}
	if err := s.patterns.Record(ctx, scope, int(sentAt.Weekday()), sentAt.Hour(), timing.KindSent); err != nil {
		logger.Warn("dispatch: pattern record failed", "scope", scope, "error", err)
	}

	if s.followCfg.Enabled {
		for seq, delay := range s.followCfg.DelayDays {
			if _, err := s.followups.Schedule(ctx, dist, delay, seq+1); err != nil {
				logger.Warn("dispatch: followup schedule failed",
					"distribution_id", dist.ID, "sequence", seq+1, "error", err)
			}
		}
	}
	return true
}

func (s *Scheduler) sweepFollowUps(ctx context.Context, now time.Time, stats *TickStats) {
	if !s.followCfg.Enabled {
		return
	}

	lease := s.leases("tick:followup-sweep")
	ok, err := lease.Acquire(ctx)
	if err != nil || !ok {
		if err != nil {
			logger.Warn("sweep: lease acquire failed", "error", err)
		}
		return
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("sweep: lease release failed", "error", err)
		}
	}()

	sweep, err := s.followups.ProcessDue(ctx, now, s.followCfg.SweepBatchSize)
	if err != nil {
		logger.Warn("sweep: followup sweep failed", "error", err)
	}
	stats.Sweep = sweep
}

// Start runs the tick loop until Stop. An immediate first tick fires
// before the interval timer takes over.
func (s *Scheduler) Start(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		log.Printf("[Scheduler] Started (interval %s)", interval)

		if _, err := s.Tick(ctx, time.Now()); err != nil && ctx.Err() == nil {
			logger.Error("tick failed", "error", err)
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if _, err := s.Tick(ctx, now); err != nil && ctx.Err() == nil {
					logger.Error("tick failed", "error", err)
				}
			}
		}
	}()
}

// Stop halts the tick loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	log.Printf("[Scheduler] Stopped")
}

// NewLeaseFactory wires the default lease backend: Redis when available,
// PostgreSQL advisory locks otherwise.
func NewLeaseFactory(redisClient *redis.Client, db *sql.DB) LeaseFactory {
	return func(key string) distlock.Lease {
		return distlock.New(redisClient, db, key, leaseTTL)
	}
}
