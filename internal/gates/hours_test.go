package gates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessHours_Contains(t *testing.T) {
	utc := DefaultBusinessHours()

	taipei := DefaultBusinessHours()
	taipei.Timezone = "Asia/Taipei"

	tests := []struct {
		name string
		bh   BusinessHours
		now  time.Time
		want bool
	}{
		{"utc weekday inside", utc, time.Date(2026, 6, 2, 9, 0, 0, 0, time.UTC), true},
		{"utc end is exclusive", utc, time.Date(2026, 6, 2, 18, 0, 0, 0, time.UTC), false},
		{"utc saturday", utc, time.Date(2026, 6, 6, 12, 0, 0, 0, time.UTC), false},
		// 02:00 UTC is 10:00 in Taipei
		{"taipei morning", taipei, time.Date(2026, 6, 2, 2, 0, 0, 0, time.UTC), true},
		// Sunday 20:00 UTC is Monday 04:00 in Taipei
		{"taipei before start", taipei, time.Date(2026, 6, 7, 20, 0, 0, 0, time.UTC), false},
		// Friday 23:00 UTC is Saturday 07:00 in Taipei
		{"taipei saturday", taipei, time.Date(2026, 6, 5, 23, 0, 0, 0, time.UTC), false},
		{"disabled", BusinessHours{}, time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.bh.Contains(tt.now))
		})
	}
}

func TestZoneOffset(t *testing.T) {
	h, ok := ZoneOffset("Asia/Tokyo")
	assert.True(t, ok)
	assert.Equal(t, 9, h)

	_, ok = ZoneOffset("Mars/Olympus")
	assert.False(t, ok)

	now := time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 12, LocalTime(now, "Mars/Olympus").Hour())
	assert.Equal(t, 7, LocalTime(now, "America/New_York").Hour())
}

func TestParseDays(t *testing.T) {
	days, err := ParseDays("1-5")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}, days)

	days, err = ParseDays("0, 6,6")
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Sunday, time.Saturday}, days)

	for _, bad := range []string{"", "5-1", "7", "mon", "1-x"} {
		_, err := ParseDays(bad)
		assert.Error(t, err, bad)
	}
}
