// Package region holds the injected region profile: country → timezone
// offset, country → recurring holidays, and the send-window embargo rules.
// These were previously scattered hardcoded tables; consolidating them here
// makes them tunable per deployment and deterministic in tests.
package region

import (
	"strconv"
	"strings"
	"time"

	"github.com/ignite/campaign-dispatch/internal/config"
)

const (
	// Hard send-window guard: never flag an hour before 08:00 or at/after
	// 19:00 as good, independent of the configured business window.
	minSendHour = 8
	maxSendHour = 19
)

type monthDay struct {
	Month time.Month
	Day   int
}

// Profile answers timezone and embargo questions for recipient countries.
type Profile struct {
	offsets       map[string]int
	holidays      map[string][]monthDay
	businessStart int
	businessEnd   int
	avoidWeekends bool
	avoidHolidays bool
}

// Built-in UTC offsets for common markets; the config table extends and
// overrides these. Offsets are standard-time hours relative to UTC.
var defaultOffsets = map[string]int{
	"US": -5,
	"CA": -5,
	"BR": -3,
	"GB": 0,
	"IE": 0,
	"PT": 0,
	"FR": 1,
	"DE": 1,
	"IT": 1,
	"ES": 1,
	"NL": 1,
	"PL": 1,
	"GR": 2,
	"RO": 2,
	"IN": 5,
	"SG": 8,
	"CN": 8,
	"JP": 9,
	"AU": 10,
	"NZ": 12,
}

var defaultHolidays = map[string][]string{
	"US": {"01-01", "07-04", "11-11", "12-24", "12-25", "12-31"},
	"GB": {"01-01", "12-25", "12-26"},
	"IT": {"01-01", "01-06", "04-25", "05-01", "08-15", "12-25", "12-26"},
	"FR": {"01-01", "05-01", "07-14", "11-11", "12-25"},
	"DE": {"01-01", "05-01", "10-03", "12-25", "12-26"},
	"JP": {"01-01", "02-11", "05-03", "11-03", "12-23"},
}

// NewProfile builds a Profile from configuration layered over the
// built-in tables.
func NewProfile(cfg config.RegionConfig) *Profile {
	p := &Profile{
		offsets:       make(map[string]int, len(defaultOffsets)),
		holidays:      make(map[string][]monthDay),
		businessStart: cfg.BusinessHourStart,
		businessEnd:   cfg.BusinessHourEnd,
		avoidWeekends: cfg.AvoidWeekends,
		avoidHolidays: cfg.AvoidHolidays,
	}
	if p.businessStart <= 0 {
		p.businessStart = 9
	}
	if p.businessEnd <= 0 {
		p.businessEnd = 18
	}

	for country, off := range defaultOffsets {
		p.offsets[country] = off
	}
	for country, off := range cfg.TimezoneOffsets {
		p.offsets[strings.ToUpper(country)] = off
	}

	for country, days := range defaultHolidays {
		p.holidays[country] = parseMonthDays(days)
	}
	for country, days := range cfg.Holidays {
		p.holidays[strings.ToUpper(country)] = parseMonthDays(days)
	}

	return p
}

func parseMonthDays(entries []string) []monthDay {
	out := make([]monthDay, 0, len(entries))
	for _, e := range entries {
		parts := strings.SplitN(e, "-", 2)
		if len(parts) != 2 {
			continue
		}
		m, err1 := strconv.Atoi(parts[0])
		d, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil || m < 1 || m > 12 || d < 1 || d > 31 {
			continue
		}
		out = append(out, monthDay{Month: time.Month(m), Day: d})
	}
	return out
}

// TimezoneOffset returns the UTC offset in hours for a country, or 0 when
// the country is unknown.
func (p *Profile) TimezoneOffset(country string) int {
	return p.offsets[strings.ToUpper(country)]
}

// IsHoliday reports whether t falls on a recurring holiday for country.
func (p *Profile) IsHoliday(country string, t time.Time) bool {
	for _, h := range p.holidays[strings.ToUpper(country)] {
		if t.Month() == h.Month && t.Day() == h.Day {
			return true
		}
	}
	return false
}

// IsGoodSendDay reports whether the date of t is free of day-level
// embargoes (weekend, holiday) for country.
func (p *Profile) IsGoodSendDay(country string, t time.Time) bool {
	if p.avoidWeekends && (t.Weekday() == time.Saturday || t.Weekday() == time.Sunday) {
		return false
	}
	if p.avoidHolidays && p.IsHoliday(country, t) {
		return false
	}
	return true
}

// IsGoodTimeToSend reports whether t is acceptable for dispatch to country:
// not a weekend, not a holiday, and within the hard hour guard.
func (p *Profile) IsGoodTimeToSend(country string, t time.Time) bool {
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	if t.Hour() < minSendHour || t.Hour() >= maxSendHour {
		return false
	}
	if p.avoidHolidays && p.IsHoliday(country, t) {
		return false
	}
	return true
}

// BusinessWindow returns the configured recommendation window [start, end].
func (p *Profile) BusinessWindow() (start, end int) {
	return p.businessStart, p.businessEnd
}

// ClampHour pulls an hour into the configured business window.
func (p *Profile) ClampHour(hour int) int {
	if hour < p.businessStart {
		return p.businessStart
	}
	if hour > p.businessEnd {
		return p.businessEnd
	}
	return hour
}

// AvoidWeekends reports whether weekend embargo is active.
func (p *Profile) AvoidWeekends() bool { return p.avoidWeekends }

// AvoidHolidays reports whether holiday embargo is active.
func (p *Profile) AvoidHolidays() bool { return p.avoidHolidays }
