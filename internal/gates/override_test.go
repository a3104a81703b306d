package gates

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverride(t *testing.T) {
	exp := time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		in      string
		want    Override
		wantErr bool
	}{
		{"", Override{}, false},
		{"enabled", Override{Enabled: true}, false},
		{"enabled:expires:2026-06-03T09:00:00Z", Override{Enabled: true, Expires: exp}, false},
		{"enabled:expires:1780477200000", Override{Enabled: true, Expires: exp}, false},
		{"enabled:expires:tomorrow", Override{}, true},
		{"disabled", Override{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseOverride(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Enabled, got.Enabled)
			assert.True(t, tt.want.Expires.Equal(got.Expires))
		})
	}
}

func TestOverride_RoundTrip(t *testing.T) {
	exp := time.Date(2026, 6, 3, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "", Override{}.String())
	assert.Equal(t, "enabled", Override{Enabled: true}.String())
	assert.Equal(t, "enabled:expires:2026-06-03T09:00:00Z", Override{Enabled: true, Expires: exp}.String())
}

func TestOverride_Active(t *testing.T) {
	now := time.Date(2026, 6, 3, 8, 0, 0, 0, time.UTC)

	assert.False(t, Override{}.Active(now))
	assert.True(t, Override{Enabled: true}.Active(now))
	assert.True(t, Override{Enabled: true, Expires: now.Add(time.Minute)}.Active(now))
	assert.False(t, Override{Enabled: true, Expires: now}.Active(now))

	assert.True(t, Override{Enabled: true, Expires: now}.Expired(now))
	assert.False(t, Override{Enabled: true}.Expired(now))
	assert.False(t, Override{}.Expired(now))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 24 * time.Hour, false},
		{"30m", 30 * time.Minute, false},
		{"2h", 2 * time.Hour, false},
		{"3D", 72 * time.Hour, false},
		{"h", 0, true},
		{"0h", 0, true},
		{"5w", 0, true},
		{"-1h", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in, 24*time.Hour)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
