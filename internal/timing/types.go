// Package timing implements the engagement-by-time learning store and the
// send-window recommender built on top of it. Patterns are aggregated per
// scope (owner + country + category) into 7×24 weekday/hour slots.
package timing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// EventKind is the class of engagement signal a slot can learn from.
type EventKind string

const (
	KindSent    EventKind = "sent"
	KindOpened  EventKind = "opened"
	KindClicked EventKind = "clicked"
)

// Scope is the learning key patterns are aggregated over.
type Scope struct {
	Owner    string
	Country  string
	Category string
}

func (s Scope) String() string {
	return fmt.Sprintf("%s/%s/%s", s.Owner, s.Country, s.Category)
}

// Pattern is one (scope, weekday, hour) aggregate slot. Rates and score are
// always derived from the counters, never mutated independently.
type Pattern struct {
	Scope        Scope
	DayOfWeek    int // 0=Sunday .. 6=Saturday
	HourOfDay    int // 0..23
	TotalSent    int64
	TotalOpened  int64
	TotalClicked int64
	OpenRate     Rate
	ClickRate    Rate
	Score        float64
	UpdatedAt    time.Time
}

// ErrInsufficientData is returned by Best when no slot in the scope has
// reached the minimum sample size.
var ErrInsufficientData = errors.New("insufficient engagement data for scope")

// ErrConcurrentUpdate is returned by Record after the bounded CAS retries
// are exhausted. Callers drop the increment; a small stat loss is
// acceptable and never affects distribution correctness.
var ErrConcurrentUpdate = errors.New("concurrent pattern update, increment dropped")

// apply folds one event into the slot's counters and rederives the rates
// and score.
func apply(p *Pattern, kind EventKind) {
	switch kind {
	case KindSent:
		p.TotalSent++
	case KindOpened:
		p.TotalOpened++
	case KindClicked:
		p.TotalClicked++
	}
	p.OpenRate = NewRate(p.TotalOpened, p.TotalSent)
	p.ClickRate = NewRate(p.TotalClicked, p.TotalSent)
	p.Score = score(p.OpenRate, p.TotalSent)
}

// score ranks a slot by engagement quality weighted by sample volume:
// openRate × log10(totalSent + 1).
func score(openRate Rate, totalSent int64) float64 {
	return openRate.Float() * math.Log10(float64(totalSent)+1)
}
