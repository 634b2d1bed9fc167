package region

import (
	"testing"
	"time"

	"github.com/ignite/campaign-dispatch/internal/config"
	"github.com/stretchr/testify/assert"
)

func testProfile() *Profile {
	return NewProfile(config.RegionConfig{
		BusinessHourStart: 9,
		BusinessHourEnd:   18,
		AvoidWeekends:     true,
		AvoidHolidays:     true,
		TimezoneOffsets:   map[string]int{"XX": 11},
	})
}

func TestTimezoneOffset(t *testing.T) {
	p := testProfile()

	assert.Equal(t, 1, p.TimezoneOffset("IT"))
	assert.Equal(t, 9, p.TimezoneOffset("jp"))
	assert.Equal(t, 11, p.TimezoneOffset("XX"))
	assert.Equal(t, 0, p.TimezoneOffset("ZZ"))
}

func TestIsGoodTimeToSendWeekends(t *testing.T) {
	p := testProfile()

	// 2026-08-22 is a Saturday, 2026-08-23 a Sunday.
	for hour := 0; hour < 24; hour++ {
		sat := time.Date(2026, 8, 22, hour, 0, 0, 0, time.UTC)
		sun := time.Date(2026, 8, 23, hour, 0, 0, 0, time.UTC)
		assert.False(t, p.IsGoodTimeToSend("US", sat), "saturday hour %d", hour)
		assert.False(t, p.IsGoodTimeToSend("US", sun), "sunday hour %d", hour)
	}
}

func TestIsGoodTimeToSendHourGuard(t *testing.T) {
	p := testProfile()

	// 2026-08-25 is a Tuesday.
	tests := []struct {
		hour int
		want bool
	}{
		{0, false},
		{7, false},
		{8, true},
		{12, true},
		{18, true},
		{19, false},
		{23, false},
	}
	for _, tt := range tests {
		ts := time.Date(2026, 8, 25, tt.hour, 0, 0, 0, time.UTC)
		assert.Equal(t, tt.want, p.IsGoodTimeToSend("US", ts), "hour %d", tt.hour)
	}
}

func TestIsGoodTimeToSendHoliday(t *testing.T) {
	p := testProfile()

	// Christmas 2026 falls on a Friday.
	christmas := time.Date(2026, 12, 25, 10, 0, 0, 0, time.UTC)
	assert.False(t, p.IsGoodTimeToSend("US", christmas))
	assert.False(t, p.IsGoodTimeToSend("IT", christmas))

	// Ferragosto is Italian only; 2026-08-15 is a Saturday, so use the
	// Italian Epiphany (2026-01-06, a Tuesday) instead.
	epiphany := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	assert.False(t, p.IsGoodTimeToSend("IT", epiphany))
	assert.True(t, p.IsGoodTimeToSend("US", epiphany))
}

func TestIsGoodSendDay(t *testing.T) {
	p := testProfile()

	assert.False(t, p.IsGoodSendDay("US", time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC))) // Saturday
	assert.True(t, p.IsGoodSendDay("US", time.Date(2026, 8, 25, 3, 0, 0, 0, time.UTC)))   // Tuesday, hour irrelevant
	assert.False(t, p.IsGoodSendDay("IT", time.Date(2026, 4, 25, 10, 0, 0, 0, time.UTC))) // Liberation Day
}

func TestClampHour(t *testing.T) {
	p := testProfile()

	assert.Equal(t, 9, p.ClampHour(3))
	assert.Equal(t, 14, p.ClampHour(14))
	assert.Equal(t, 18, p.ClampHour(22))
}
