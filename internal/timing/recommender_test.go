package timing

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/ignite/campaign-dispatch/internal/region"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryPatterns is an in-memory PatternSource fed through the same apply
// logic as the SQL store.
type memoryPatterns struct {
	slots map[[2]int]*Pattern
}

func newMemoryPatterns() *memoryPatterns {
	return &memoryPatterns{slots: make(map[[2]int]*Pattern)}
}

func (m *memoryPatterns) record(day, hour int, kind EventKind) {
	key := [2]int{day, hour}
	p, ok := m.slots[key]
	if !ok {
		p = &Pattern{DayOfWeek: day, HourOfDay: hour}
		m.slots[key] = p
	}
	apply(p, kind)
}

func (m *memoryPatterns) Best(_ context.Context, _ Scope, minSample int) (*Pattern, error) {
	var best *Pattern
	for _, p := range m.slots {
		if p.TotalSent < int64(minSample) {
			continue
		}
		if best == nil || p.Score > best.Score {
			best = p
		}
	}
	if best == nil {
		return nil, ErrInsufficientData
	}
	return best, nil
}

func testRecommender(patterns PatternSource) *Recommender {
	profile := region.NewProfile(config.RegionConfig{
		BusinessHourStart: 9,
		BusinessHourEnd:   18,
		AvoidWeekends:     true,
		AvoidHolidays:     true,
	})
	return NewRecommender(patterns, profile, 10)
}

// 12 sends at Tue-10:00 with 8 opens versus 12 sends at Thu-15:00 with
// 2 opens must recommend Tue-10:00 at medium confidence.
func TestRecommendPrefersHigherScoredSlot(t *testing.T) {
	patterns := newMemoryPatterns()
	for i := 0; i < 12; i++ {
		patterns.record(2, 10, KindSent)
		patterns.record(4, 15, KindSent)
	}
	for i := 0; i < 8; i++ {
		patterns.record(2, 10, KindOpened)
	}
	for i := 0; i < 2; i++ {
		patterns.record(4, 15, KindOpened)
	}

	rec, err := testRecommender(patterns).Recommend(context.Background(), testScope)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.DayOfWeek)
	assert.Equal(t, 10, rec.HourOfDay)
	assert.Equal(t, ConfidenceMedium, rec.Confidence)
	assert.Equal(t, int64(12), rec.SampleSize)
	assert.Contains(t, rec.Reason, "12 sends")
}

func TestRecommendHighConfidenceAtLargeSample(t *testing.T) {
	patterns := newMemoryPatterns()
	for i := 0; i < 150; i++ {
		patterns.record(3, 11, KindSent)
	}
	for i := 0; i < 40; i++ {
		patterns.record(3, 11, KindOpened)
	}

	rec, err := testRecommender(patterns).Recommend(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, ConfidenceHigh, rec.Confidence)
}

func TestRecommendFallbackOnEmptyHistory(t *testing.T) {
	rec, err := testRecommender(newMemoryPatterns()).Recommend(context.Background(),
		Scope{Owner: "acme", Country: "US", Category: "general"})
	require.NoError(t, err)

	// 9:00 local in US (UTC-5) is 14:00 UTC.
	assert.Equal(t, ConfidenceLow, rec.Confidence)
	assert.Equal(t, 14, rec.HourOfDay)
	assert.Equal(t, 2, rec.DayOfWeek)
	assert.Contains(t, rec.Reason, "no engagement history")
}

func TestRecommendClampsHourIntoBusinessWindow(t *testing.T) {
	patterns := newMemoryPatterns()
	for i := 0; i < 30; i++ {
		patterns.record(1, 6, KindSent) // Monday 06:00, outside the window
	}
	for i := 0; i < 10; i++ {
		patterns.record(1, 6, KindOpened)
	}

	rec, err := testRecommender(patterns).Recommend(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, 9, rec.HourOfDay)
}

func TestRecommendShiftsWeekendSlotToMonday(t *testing.T) {
	patterns := newMemoryPatterns()
	for i := 0; i < 25; i++ {
		patterns.record(6, 11, KindSent) // Saturday
	}
	for i := 0; i < 12; i++ {
		patterns.record(6, 11, KindOpened)
	}

	rec, err := testRecommender(patterns).Recommend(context.Background(), testScope)
	require.NoError(t, err)
	assert.Equal(t, int(time.Monday), rec.DayOfWeek)
}

func TestNextOccurrenceRollsForward(t *testing.T) {
	r := testRecommender(newMemoryPatterns())

	// Wednesday 2026-08-26 12:00 UTC, target Tuesday 10:00.
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	next := r.NextOccurrence("IT", 2, 10, now)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceSameDayLaterHour(t *testing.T) {
	r := testRecommender(newMemoryPatterns())

	// Tuesday 2026-08-25 08:00 UTC, target Tuesday 10:00 → same day.
	now := time.Date(2026, 8, 25, 8, 0, 0, 0, time.UTC)
	next := r.NextOccurrence("IT", 2, 10, now)
	assert.Equal(t, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceExactHourRollsToNextWeek(t *testing.T) {
	r := testRecommender(newMemoryPatterns())

	// Exactly Tuesday 10:00 on the target day counts as already past.
	now := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	next := r.NextOccurrence("IT", 2, 10, now)
	assert.Equal(t, time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC), next)
}

func TestNextOccurrenceSkipsEmbargoedDates(t *testing.T) {
	r := testRecommender(newMemoryPatterns())

	// Target Friday 10:00 from Monday 2026-12-21. Friday is Christmas,
	// then the weekend; first good date is Monday the 28th.
	now := time.Date(2026, 12, 21, 9, 0, 0, 0, time.UTC)
	next := r.NextOccurrence("US", 5, 10, now)
	assert.Equal(t, time.Date(2026, 12, 28, 10, 0, 0, 0, time.UTC), next)
}
