package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/directory"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/timing"
)

// DistributionStore is the distribution surface ingestion drives.
// Satisfied by *campaign.Store.
type DistributionStore interface {
	Get(ctx context.Context, id uuid.UUID) (*campaign.Campaign, error)
	GetDistribution(ctx context.Context, id uuid.UUID) (*campaign.Distribution, error)
	FindLatestByAddress(ctx context.Context, address string) (*campaign.Distribution, error)
	AdvanceStatus(ctx context.Context, id uuid.UUID, to campaign.DistStatus, at time.Time) (bool, error)
	IncrementOpened(ctx context.Context, id uuid.UUID) error
}

// RecipientResolver reads one recipient. Satisfied by *directory.Store.
type RecipientResolver interface {
	Get(ctx context.Context, id uuid.UUID) (*directory.Recipient, error)
}

// PatternRecorder feeds the timing model. Satisfied by
// *timing.PatternStore.
type PatternRecorder interface {
	Record(ctx context.Context, scope timing.Scope, dayOfWeek, hourOfDay int, kind timing.EventKind) error
}

// FollowUpCanceller cancels pending reminders on engagement. Satisfied by
// *followup.Manager.
type FollowUpCanceller interface {
	CancelForRecipient(ctx context.Context, campaignID, recipientID uuid.UUID) (int64, error)
}

// Processor applies one event to the system. Processing is idempotent and
// never raises resolution failures to the caller: an event that cannot be
// matched to a distribution is logged and dropped.
type Processor struct {
	dists      DistributionStore
	recipients RecipientResolver
	patterns   PatternRecorder
	followups  FollowUpCanceller
}

// NewProcessor creates an event processor.
func NewProcessor(dists DistributionStore, recipients RecipientResolver,
	patterns PatternRecorder, followups FollowUpCanceller) *Processor {
	return &Processor{dists: dists, recipients: recipients, patterns: patterns, followups: followups}
}

// Process applies one validated event. Returns an error only for
// infrastructure failures worth retrying; semantic dead ends (unknown
// reference, downgrade attempt) resolve to nil.
func (p *Processor) Process(ctx context.Context, ev *Event) error {
	if err := ev.Validate(); err != nil {
		logger.Warn("ingest: invalid event dropped", "error", err)
		return nil
	}

	dist := p.resolve(ctx, ev)
	if dist == nil {
		return nil
	}

	applied, err := p.dists.AdvanceStatus(ctx, dist.ID, statusFor(ev.Type), ev.Timestamp)
	if err != nil {
		return err
	}
	if !applied {
		// Out-of-order or duplicate webhook; the forward-only machine
		// already holds a later state.
		return nil
	}

	switch ev.Type {
	case EventOpened:
		if err := p.dists.IncrementOpened(ctx, dist.CampaignID); err != nil {
			logger.Error("ingest: opened counter failed", "campaign_id", dist.CampaignID, "error", err)
		}
		p.learn(ctx, dist, timing.KindOpened)
		p.cancelFollowUps(ctx, dist)
	case EventClicked:
		p.learn(ctx, dist, timing.KindClicked)
		p.cancelFollowUps(ctx, dist)
	case EventBounced, EventComplained:
		p.cancelFollowUps(ctx, dist)
	}
	return nil
}

// resolve finds the distribution an event refers to: by explicit reference
// first, then by the recipient's most recent distribution. Unknown
// references are logged and dropped.
func (p *Processor) resolve(ctx context.Context, ev *Event) *campaign.Distribution {
	if ev.DistributionRef != "" {
		if id, err := uuid.Parse(ev.DistributionRef); err == nil {
			dist, err := p.dists.GetDistribution(ctx, id)
			if err == nil {
				return dist
			}
			logger.Warn("ingest: distribution ref unresolved, trying address",
				"ref", ev.DistributionRef, "error", err)
		}
	}

	if ev.RecipientAddress == "" {
		logger.Warn("ingest: event dropped, no usable reference", "type", ev.Type)
		return nil
	}
	dist, err := p.dists.FindLatestByAddress(ctx, ev.RecipientAddress)
	if err != nil {
		logger.Warn("ingest: event dropped, address unresolved",
			"type", ev.Type, "address", logger.RedactAddress(ev.RecipientAddress), "error", err)
		return nil
	}
	return dist
}

// learn folds the engagement into the slot of the original send, not the
// webhook's arrival time. What we want to rank is "sends made at this slot
// get engagement", and the send slot is the only stable anchor for that.
func (p *Processor) learn(ctx context.Context, dist *campaign.Distribution, kind timing.EventKind) {
	if dist.SentAt == nil {
		return
	}
	c, err := p.dists.Get(ctx, dist.CampaignID)
	if err != nil {
		logger.Warn("ingest: campaign read failed, pattern skipped", "campaign_id", dist.CampaignID, "error", err)
		return
	}
	r, err := p.recipients.Get(ctx, dist.RecipientID)
	if err != nil {
		logger.Warn("ingest: recipient read failed, pattern skipped", "recipient_id", dist.RecipientID, "error", err)
		return
	}

	scope := timing.Scope{Owner: c.Owner, Country: r.Country, Category: c.Category}
	slot := dist.SentAt.UTC()
	if err := p.patterns.Record(ctx, scope, int(slot.Weekday()), slot.Hour(), kind); err != nil {
		// Bounded-retry exhaustion drops the increment; stats degrade,
		// distribution state does not.
		logger.Warn("ingest: pattern record dropped", "scope", scope, "error", err)
	}
}

func (p *Processor) cancelFollowUps(ctx context.Context, dist *campaign.Distribution) {
	n, err := p.followups.CancelForRecipient(ctx, dist.CampaignID, dist.RecipientID)
	if err != nil {
		logger.Error("ingest: followup cancel failed",
			"campaign_id", dist.CampaignID, "recipient_id", dist.RecipientID, "error", err)
		return
	}
	if n > 0 {
		logger.Info("followups cancelled on engagement",
			"campaign_id", dist.CampaignID, "recipient_id", dist.RecipientID, "cancelled", n)
	}
}
