package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dispatch/internal/campaign"
	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/directory"
	"github.com/ignite/campaign-dispatch/internal/followup"
	"github.com/ignite/campaign-dispatch/internal/pkg/distlock"
	"github.com/ignite/campaign-dispatch/internal/timing"
)

type fakeCampaignStore struct {
	campaigns map[uuid.UUID]*campaign.Campaign
	eligible  []directory.Recipient
	dists     map[uuid.UUID]*campaign.Distribution
	failed    map[uuid.UUID]string
	finished  map[uuid.UUID]campaign.Status
}

func newFakeCampaignStore(c *campaign.Campaign, eligible []directory.Recipient) *fakeCampaignStore {
	return &fakeCampaignStore{
		campaigns: map[uuid.UUID]*campaign.Campaign{c.ID: c},
		eligible:  eligible,
		dists:     map[uuid.UUID]*campaign.Distribution{},
		failed:    map[uuid.UUID]string{},
		finished:  map[uuid.UUID]campaign.Status{},
	}
}

func (f *fakeCampaignStore) ListByStatus(_ context.Context, status campaign.Status) ([]campaign.Campaign, error) {
	var out []campaign.Campaign
	for _, c := range f.campaigns {
		if c.Status == status {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) Get(_ context.Context, id uuid.UUID) (*campaign.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignStore) EligibleRecipients(_ context.Context, _ uuid.UUID, _ string) ([]directory.Recipient, error) {
	var out []directory.Recipient
	for _, r := range f.eligible {
		sent := false
		for _, d := range f.dists {
			if d.RecipientID == r.ID && d.Status != campaign.DistPending {
				sent = true
			}
		}
		if !sent {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) EnsureDistribution(_ context.Context, campaignID, recipientID uuid.UUID) (*campaign.Distribution, error) {
	for _, d := range f.dists {
		if d.CampaignID == campaignID && d.RecipientID == recipientID {
			cp := *d
			return &cp, nil
		}
	}
	d := &campaign.Distribution{
		ID:          uuid.New(),
		CampaignID:  campaignID,
		RecipientID: recipientID,
		Status:      campaign.DistPending,
	}
	f.dists[d.ID] = d
	cp := *d
	return &cp, nil
}

func (f *fakeCampaignStore) AdvanceStatus(_ context.Context, id uuid.UUID, to campaign.DistStatus, at time.Time) (bool, error) {
	d, ok := f.dists[id]
	if !ok {
		return false, campaign.ErrNotFound
	}
	if to == campaign.DistSent && d.Status == campaign.DistPending {
		d.Status = campaign.DistSent
		d.SentAt = &at
		return true, nil
	}
	return false, nil
}

func (f *fakeCampaignStore) MarkFailed(_ context.Context, id uuid.UUID, errMsg string) error {
	if d, ok := f.dists[id]; ok {
		d.Status = campaign.DistFailed
	}
	f.failed[id] = errMsg
	return nil
}

func (f *fakeCampaignStore) IncrementSent(_ context.Context, id uuid.UUID) error {
	f.campaigns[id].SentCount++
	return nil
}

func (f *fakeCampaignStore) Finish(_ context.Context, id uuid.UUID, to campaign.Status, at time.Time) error {
	f.campaigns[id].Status = to
	f.campaigns[id].CompletedAt = &at
	f.finished[id] = to
	return nil
}

type fakeInitialSender struct {
	sent    []string
	failFor map[string]bool
}

func (f *fakeInitialSender) SendInitial(_ context.Context, _ *campaign.Campaign, r *directory.Recipient, _ uuid.UUID) error {
	if f.failFor[r.Address] {
		return errors.New("sender timeout")
	}
	f.sent = append(f.sent, r.Address)
	return nil
}

type fakePatterns struct {
	recorded []timing.EventKind
}

func (f *fakePatterns) Record(_ context.Context, _ timing.Scope, _, _ int, kind timing.EventKind) error {
	f.recorded = append(f.recorded, kind)
	return nil
}

type fakeFollowUps struct {
	scheduled []int
	sweep     followup.SweepStats
	swept     bool
}

func (f *fakeFollowUps) Schedule(_ context.Context, _ *campaign.Distribution, _ int, seq int) (*followup.Task, error) {
	f.scheduled = append(f.scheduled, seq)
	return &followup.Task{ID: uuid.New()}, nil
}

func (f *fakeFollowUps) ProcessDue(_ context.Context, _ time.Time, _ int) (followup.SweepStats, error) {
	f.swept = true
	return f.sweep, nil
}

type fakeLease struct {
	grant bool
}

func (l *fakeLease) Acquire(context.Context) (bool, error) { return l.grant, nil }
func (l *fakeLease) Release(context.Context) error         { return nil }

func grantAll(string) distlock.Lease  { return &fakeLease{grant: true} }
func grantNone(string) distlock.Lease { return &fakeLease{grant: false} }

func matchAllRecommend() RecommendationSource {
	return &fakeRecommend{recs: map[string]*timing.Recommendation{
		"IT": {DayOfWeek: int(tueTen.Weekday()), HourOfDay: tueTen.Hour(), Confidence: timing.ConfidenceHigh},
	}}
}

func newTestScheduler(store *fakeCampaignStore, send *fakeInitialSender,
	patterns *fakePatterns, followups *fakeFollowUps, leases LeaseFactory) *Scheduler {
	return NewScheduler(
		store,
		NewBatchSelector(store, matchAllRecommend()),
		send,
		patterns,
		followups,
		leases,
		config.FollowUpConfig{Enabled: true, DelayDays: []int{3, 7}, SweepBatchSize: 50},
		"acme",
	)
}

func TestTickDispatchesBatchAndSchedulesFollowUps(t *testing.T) {
	c := &campaign.Campaign{
		ID: uuid.New(), Owner: "acme", Category: "general",
		Status: campaign.StatusActive, TotalRecipients: 5, DailyBatchSize: 2,
	}
	store := newFakeCampaignStore(c, seqRecipients("IT", 1, 2, 3))
	send := &fakeInitialSender{}
	patterns := &fakePatterns{}
	followups := &fakeFollowUps{}

	s := newTestScheduler(store, send, patterns, followups, grantAll)
	stats, err := s.Tick(context.Background(), tueTen)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Sent)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, []string{"r1@example.com", "r2@example.com"}, send.sent)
	assert.Equal(t, 2, store.campaigns[c.ID].SentCount)
	assert.Equal(t, []timing.EventKind{timing.KindSent, timing.KindSent}, patterns.recorded)
	// Two follow-ups per send, sequence numbers 1 and 2.
	assert.Equal(t, []int{1, 2, 1, 2}, followups.scheduled)
	assert.True(t, followups.swept)
}

func TestTickSkipsWhenLeaseHeldElsewhere(t *testing.T) {
	c := &campaign.Campaign{
		ID: uuid.New(), Owner: "acme", Category: "general",
		Status: campaign.StatusActive, TotalRecipients: 3, DailyBatchSize: 3,
	}
	store := newFakeCampaignStore(c, seqRecipients("IT", 1))
	send := &fakeInitialSender{}

	s := newTestScheduler(store, send, &fakePatterns{}, &fakeFollowUps{}, grantNone)
	stats, err := s.Tick(context.Background(), tueTen)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Sent)
	assert.Empty(t, send.sent)
}

func TestTickSendFailureMarksDistributionFailed(t *testing.T) {
	c := &campaign.Campaign{
		ID: uuid.New(), Owner: "acme", Category: "general",
		Status: campaign.StatusActive, TotalRecipients: 2, DailyBatchSize: 2,
	}
	store := newFakeCampaignStore(c, seqRecipients("IT", 1, 2))
	send := &fakeInitialSender{failFor: map[string]bool{"r1@example.com": true}}
	followups := &fakeFollowUps{}

	s := newTestScheduler(store, send, &fakePatterns{}, followups, grantAll)
	stats, err := s.Tick(context.Background(), tueTen)
	require.NoError(t, err)

	// One failure never aborts the rest of the batch.
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Sent)
	assert.Len(t, store.failed, 1)
	assert.Equal(t, []int{1, 2}, followups.scheduled, "only the successful send schedules follow-ups")
}

func TestTickCompletesDrainedCampaign(t *testing.T) {
	c := &campaign.Campaign{
		ID: uuid.New(), Owner: "acme", Category: "general",
		Status: campaign.StatusActive, TotalRecipients: 2, DailyBatchSize: 5,
	}
	store := newFakeCampaignStore(c, seqRecipients("IT", 1, 2))

	s := newTestScheduler(store, &fakeInitialSender{}, &fakePatterns{}, &fakeFollowUps{}, grantAll)
	stats, err := s.Tick(context.Background(), tueTen)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, campaign.StatusCompleted, store.finished[c.ID])
}

func TestTickRecheckStatusUnderLease(t *testing.T) {
	c := &campaign.Campaign{
		ID: uuid.New(), Owner: "acme", Category: "general",
		Status: campaign.StatusActive, TotalRecipients: 3, DailyBatchSize: 3,
	}
	store := newFakeCampaignStore(c, seqRecipients("IT", 1))
	send := &fakeInitialSender{}

	// Pause lands between the active listing and the lease grant.
	paused := false
	leases := func(key string) distlock.Lease {
		if !paused {
			store.campaigns[c.ID].Status = campaign.StatusPaused
			paused = true
		}
		return &fakeLease{grant: true}
	}

	s := newTestScheduler(store, send, &fakePatterns{}, &fakeFollowUps{}, leases)
	stats, err := s.Tick(context.Background(), tueTen)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Skipped)
	assert.Empty(t, send.sent)
}

func TestTickIsIdempotentAcrossReplay(t *testing.T) {
	c := &campaign.Campaign{
		ID: uuid.New(), Owner: "acme", Category: "general",
		Status: campaign.StatusActive, TotalRecipients: 5, DailyBatchSize: 5,
	}
	store := newFakeCampaignStore(c, seqRecipients("IT", 1, 2))
	send := &fakeInitialSender{}

	s := newTestScheduler(store, send, &fakePatterns{}, &fakeFollowUps{}, grantAll)
	_, err := s.Tick(context.Background(), tueTen)
	require.NoError(t, err)
	stats, err := s.Tick(context.Background(), tueTen)
	require.NoError(t, err)

	// The replayed tick finds no eligible recipients and sends nothing.
	assert.Zero(t, stats.Sent)
	assert.Len(t, send.sent, 2)
	assert.Equal(t, 2, store.campaigns[c.ID].SentCount)
}
