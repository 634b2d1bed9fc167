package timing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/campaign-dispatch/internal/region"
)

// Confidence labels how much history backs a recommendation.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Sample-size thresholds for confidence labels. Any learned slot reaches
// at least the minimum sample, so "low" in practice marks timezone-default
// fallbacks; the batch scheduler relies on that to relax its weekday match.
const (
	mediumSampleThreshold = 10
	highSampleThreshold   = 100
)

// Fallback target when a scope has no usable history: 9:00 local time,
// Tuesday (the strongest default weekday across our historical sends).
const (
	fallbackLocalHour = 9
	fallbackDay       = 2 // Tuesday
)

// Recommendation is a concrete send-window suggestion in the reference
// clock (UTC).
type Recommendation struct {
	DayOfWeek  int        `json:"day_of_week"`
	HourOfDay  int        `json:"hour_of_day"`
	Confidence Confidence `json:"confidence"`
	SampleSize int64      `json:"sample_size"`
	Reason     string     `json:"reason"`
}

// PatternSource answers best-slot queries; satisfied by *PatternStore.
type PatternSource interface {
	Best(ctx context.Context, scope Scope, minSample int) (*Pattern, error)
}

// Recommender turns learned patterns into send windows, falling back to a
// timezone default for sparse scopes and applying the embargo policy of the
// injected region profile in both cases.
type Recommender struct {
	patterns  PatternSource
	profile   *region.Profile
	minSample int
}

// NewRecommender creates a Recommender. minSample below 1 defaults to 10.
func NewRecommender(patterns PatternSource, profile *region.Profile, minSample int) *Recommender {
	if minSample < 1 {
		minSample = 10
	}
	return &Recommender{patterns: patterns, profile: profile, minSample: minSample}
}

// Recommend returns the send window for a scope. With enough history it is
// the best-scoring learned slot; otherwise 9:00 local time in the
// recipient's country converted to UTC, at low confidence.
func (r *Recommender) Recommend(ctx context.Context, scope Scope) (*Recommendation, error) {
	best, err := r.patterns.Best(ctx, scope, r.minSample)
	if err != nil {
		if errors.Is(err, ErrInsufficientData) {
			return r.fallback(scope), nil
		}
		return nil, err
	}

	rec := &Recommendation{
		DayOfWeek:  best.DayOfWeek,
		HourOfDay:  r.profile.ClampHour(best.HourOfDay),
		Confidence: confidenceFor(best.TotalSent),
		SampleSize: best.TotalSent,
		Reason: fmt.Sprintf("based on %d sends at %s %02d:00 with %s open rate",
			best.TotalSent, time.Weekday(best.DayOfWeek), best.HourOfDay, best.OpenRate),
	}
	rec.DayOfWeek = r.shiftOffWeekend(rec.DayOfWeek)
	return rec, nil
}

func (r *Recommender) fallback(scope Scope) *Recommendation {
	offset := r.profile.TimezoneOffset(scope.Country)
	utcHour := ((fallbackLocalHour-offset)%24 + 24) % 24
	return &Recommendation{
		DayOfWeek:  r.shiftOffWeekend(fallbackDay),
		HourOfDay:  r.profile.ClampHour(utcHour),
		Confidence: ConfidenceLow,
		SampleSize: 0,
		Reason: fmt.Sprintf("no engagement history for %s; defaulting to %02d:00 local time (UTC offset %+d)",
			scope, fallbackLocalHour, offset),
	}
}

// shiftOffWeekend moves a recommended weekday to Monday when the weekend
// embargo is active.
func (r *Recommender) shiftOffWeekend(day int) int {
	if !r.profile.AvoidWeekends() {
		return day
	}
	if day == int(time.Saturday) || day == int(time.Sunday) {
		return int(time.Monday)
	}
	return day
}

func confidenceFor(totalSent int64) Confidence {
	switch {
	case totalSent >= highSampleThreshold:
		return ConfidenceHigh
	case totalSent >= mediumSampleThreshold:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// NextOccurrence computes the next concrete timestamp at or after now that
// matches the recommended weekday and hour, then advances day-by-day while
// the candidate date is embargoed for the country. When now is exactly at
// the target hour on the target day the slot counts as already past and
// rolls to the following week.
func (r *Recommender) NextOccurrence(country string, dayOfWeek, hourOfDay int, now time.Time) time.Time {
	now = now.UTC()
	daysUntil := (dayOfWeek - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day()+daysUntil, hourOfDay, 0, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	for !r.profile.IsGoodSendDay(country, candidate) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
