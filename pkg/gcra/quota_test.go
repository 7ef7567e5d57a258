package gcra_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manenim/gcra-limiter/pkg/gcra"
)

func TestQuota_Constructors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() (gcra.Quota, error)
		interval time.Duration
		burst    uint32
	}{
		{"per second", func() (gcra.Quota, error) { return gcra.PerSecond(10) }, 100 * time.Millisecond, 10},
		{"per minute", func() (gcra.Quota, error) { return gcra.PerMinute(60) }, time.Second, 60},
		{"per hour", func() (gcra.Quota, error) { return gcra.PerHour(1) }, time.Hour, 1},
		{"with period", func() (gcra.Quota, error) { return gcra.WithPeriod(250 * time.Millisecond) }, 250 * time.Millisecond, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.interval, q.ReplenishInterval())
			assert.Equal(t, tt.burst, q.BurstSize())
			assert.Equal(t, tt.interval*time.Duration(tt.burst), q.BurstSizeReplenishedIn())
			assert.NoError(t, q.Validate())
		})
	}
}

func TestQuota_AllowBurst(t *testing.T) {
	t.Parallel()

	q, err := gcra.Must(gcra.PerSecond(2)).AllowBurst(10)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, q.ReplenishInterval())
	assert.Equal(t, uint32(10), q.BurstSize())
	assert.Equal(t, 5*time.Second, q.BurstSizeReplenishedIn())
	assert.Contains(t, q.String(), "10 cells per 5s")
}

func TestQuota_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func() (gcra.Quota, error)
	}{
		{"zero burst", func() (gcra.Quota, error) { return gcra.PerSecond(0) }},
		{"zero period", func() (gcra.Quota, error) { return gcra.WithPeriod(0) }},
		{"negative period", func() (gcra.Quota, error) { return gcra.WithPeriod(-time.Second) }},
		{"sub-nanosecond interval", func() (gcra.Quota, error) { return gcra.PerSecond(2_000_000_000) }},
		{"zero burst override", func() (gcra.Quota, error) { return gcra.Must(gcra.PerSecond(1)).AllowBurst(0) }},
		{"overflow", func() (gcra.Quota, error) {
			return gcra.Must(gcra.WithPeriod(100 * 365 * 24 * time.Hour)).AllowBurst(1 << 31)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			assert.ErrorIs(t, err, gcra.ErrInvalidQuota)
		})
	}

	assert.ErrorIs(t, gcra.Quota{}.Validate(), gcra.ErrInvalidQuota)
}

func TestMust_Panics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { gcra.Must(gcra.PerSecond(0)) })
}
