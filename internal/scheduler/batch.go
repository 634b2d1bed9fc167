// Package scheduler runs the periodic dispatch loop: per campaign it
// selects the next recipient batch by learned timing, sends, and then
// sweeps due follow-ups.
package scheduler

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/directory"
	"github.com/ignite/campaign-dispatch/internal/pkg/logger"
	"github.com/ignite/campaign-dispatch/internal/timing"
)

// RecipientSource lists recipients still awaiting their initial send.
// Satisfied by *campaign.Store.
type RecipientSource interface {
	EligibleRecipients(ctx context.Context, campaignID uuid.UUID, category string) ([]directory.Recipient, error)
}

// RecommendationSource answers per-scope timing queries. Satisfied by
// *timing.Recommender.
type RecommendationSource interface {
	Recommend(ctx context.Context, scope timing.Scope) (*timing.Recommendation, error)
}

// BatchSelector picks which eligible recipients to send to right now.
type BatchSelector struct {
	recipients RecipientSource
	recommend  RecommendationSource
}

// NewBatchSelector creates a batch selector.
func NewBatchSelector(recipients RecipientSource, recommend RecommendationSource) *BatchSelector {
	return &BatchSelector{recipients: recipients, recommend: recommend}
}

// SelectBatch returns at most maxBatch recipients for the campaign, in
// recipient id ascending order so repeated calls within one tick are
// idempotent. Recipients whose country's recommended window matches now
// are preferred; if that underfills the batch, the remainder is filled
// from any eligible recipient regardless of timing. Guaranteed throughput
// beats strict timing-optimality: a campaign always drains within its
// pacing schedule even when no country hits an optimal window.
func (b *BatchSelector) SelectBatch(ctx context.Context, c *campaign.Campaign, now time.Time, maxBatch int) ([]directory.Recipient, error) {
	if maxBatch <= 0 {
		return nil, nil
	}

	eligible, err := b.recipients.EligibleRecipients(ctx, c.ID, c.Category)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	now = now.UTC()

	// One recommendation per country, decided once per tick.
	countryMatch := make(map[string]bool)
	for _, r := range eligible {
		if _, seen := countryMatch[r.Country]; seen {
			continue
		}
		scope := timing.Scope{Owner: c.Owner, Country: r.Country, Category: c.Category}
		rec, err := b.recommend.Recommend(ctx, scope)
		if err != nil {
			logger.Warn("batch: recommendation failed, country deferred to quota fill",
				"country", r.Country, "error", err)
			countryMatch[r.Country] = false
			continue
		}
		countryMatch[r.Country] = matchesWindow(rec, now)
	}

	batch := make([]directory.Recipient, 0, maxBatch)
	var fill []directory.Recipient
	for _, r := range eligible {
		if countryMatch[r.Country] {
			batch = append(batch, r)
		} else {
			fill = append(fill, r)
		}
	}

	// Quota-fill fallback keeps the daily pacing target.
	for _, r := range fill {
		if len(batch) >= maxBatch {
			break
		}
		batch = append(batch, r)
	}
	if len(batch) > maxBatch {
		batch = batch[:maxBatch]
	}

	// Stable, reproducible order regardless of which bucket a recipient
	// came from.
	sort.Slice(batch, func(i, j int) bool {
		return bytes.Compare(batch[i].ID[:], batch[j].ID[:]) < 0
	})
	return batch, nil
}

// matchesWindow reports whether now falls in the recommended window: within
// one hour of the recommended hour, and on the recommended weekday unless
// the recommendation is a low-confidence fallback.
func matchesWindow(rec *timing.Recommendation, now time.Time) bool {
	diff := now.Hour() - rec.HourOfDay
	if diff < 0 {
		diff = -diff
	}
	if d := 24 - diff; d < diff {
		diff = d
	}
	if diff > 1 {
		return false
	}
	return rec.Confidence == timing.ConfidenceLow || int(now.Weekday()) == rec.DayOfWeek
}
