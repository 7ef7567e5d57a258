package gcra

import (
	"fmt"
	"math"
	"time"
)

// Quota describes how fast cells replenish and how many may be admitted at
// once. The zero value is invalid; build quotas with the constructors below.
type Quota struct {
	replenish1Per time.Duration
	maxBurst      uint32
}

// PerSecond allows maxBurst cells per second, all of which may arrive at once.
func PerSecond(maxBurst uint32) (Quota, error) {
	return perPeriod(time.Second, maxBurst)
}

// PerMinute allows maxBurst cells per minute, all of which may arrive at once.
func PerMinute(maxBurst uint32) (Quota, error) {
	return perPeriod(time.Minute, maxBurst)
}

// PerHour allows maxBurst cells per hour, all of which may arrive at once.
func PerHour(maxBurst uint32) (Quota, error) {
	return perPeriod(time.Hour, maxBurst)
}

// WithPeriod replenishes one cell every replenish1Per, with a burst of one.
func WithPeriod(replenish1Per time.Duration) (Quota, error) {
	q := Quota{replenish1Per: replenish1Per, maxBurst: 1}
	if err := q.Validate(); err != nil {
		return Quota{}, err
	}
	return q, nil
}

func perPeriod(period time.Duration, maxBurst uint32) (Quota, error) {
	if maxBurst == 0 {
		return Quota{}, fmt.Errorf("%w: burst must be positive, got 0", ErrInvalidQuota)
	}
	q := Quota{
		replenish1Per: period / time.Duration(maxBurst),
		maxBurst:      maxBurst,
	}
	if err := q.Validate(); err != nil {
		return Quota{}, err
	}
	return q, nil
}

// AllowBurst returns a copy of q that admits up to maxBurst cells at once
// while keeping the replenishment interval.
func (q Quota) AllowBurst(maxBurst uint32) (Quota, error) {
	q.maxBurst = maxBurst
	if err := q.Validate(); err != nil {
		return Quota{}, err
	}
	return q, nil
}

// Must panics if err is non-nil. It is meant for quotas built from constants.
func Must(q Quota, err error) Quota {
	if err != nil {
		panic(err)
	}
	return q
}

// ReplenishInterval is the time it takes to regain a single cell.
func (q Quota) ReplenishInterval() time.Duration {
	return q.replenish1Per
}

// BurstSize is the maximum number of cells admitted at once.
func (q Quota) BurstSize() uint32 {
	return q.maxBurst
}

// BurstSizeReplenishedIn is the time it takes an exhausted bucket to become
// completely full again.
func (q Quota) BurstSizeReplenishedIn() time.Duration {
	return q.replenish1Per * time.Duration(q.maxBurst)
}

// Validate reports whether the quota can drive a Gcra.
func (q Quota) Validate() error {
	if q.maxBurst == 0 {
		return fmt.Errorf("%w: burst must be positive, got 0", ErrInvalidQuota)
	}
	if q.replenish1Per <= 0 {
		return fmt.Errorf("%w: replenish interval must be positive, got %v", ErrInvalidQuota, q.replenish1Per)
	}
	if q.replenish1Per > time.Duration(math.MaxInt64/int64(q.maxBurst)) {
		return fmt.Errorf("%w: replenish interval %v times burst %d overflows", ErrInvalidQuota, q.replenish1Per, q.maxBurst)
	}
	return nil
}

func (q Quota) String() string {
	return fmt.Sprintf("%d cells per %v (one every %v)", q.maxBurst, q.BurstSizeReplenishedIn(), q.replenish1Per)
}
