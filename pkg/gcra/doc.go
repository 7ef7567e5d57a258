// Package gcra implements the decision engine of the Generic Cell Rate
// Algorithm.
//
// GCRA admits discrete units of work ("cells") against a Quota while keeping
// only one value per rate-limited key: the theoretical arrival time (tat), the
// instant at which the key's bucket would be empty if no further cells
// arrived. Two constants are derived from the quota:
//
//   - t, the weight of a single cell (the replenishment interval)
//   - tau, the burst capacity (t times the maximum burst)
//
// A cell arriving at now conforms iff now >= tat - tau. A conforming cell
// moves tat to max(tat, now) + t. A non-conforming cell leaves tat untouched.
//
// # Usage
//
//	g := gcra.New(gcra.Must(gcra.PerSecond(10)))
//	var clk clock.MonotonicClock
//	start := clk.Now()
//
//	_, err := gcra.TestAndUpdate(ctx, g, start, "user:123", store, clk.Now())
//	var nu *gcra.NotUntil[clock.Instant]
//	if errors.As(err, &nu) {
//		retryIn := nu.WaitTimeFrom(clk.Now())
//		...
//	}
//
// # Storage
//
// The engine holds no mutable state. Per-key state lives in a StateStore whose
// MeasureAndReplace runs the read, the decision and the write as one atomic
// step per key. Package limiter ships an atomic cell, an in-process map, a
// lock-free map and a Redis-backed store.
//
// # Negative Decisions
//
// Single-cell tests fail with *NotUntil. Batch tests fail with either
// *InsufficientCapacity, which will never succeed and must not be retried,
// or *BatchNonConforming, which carries a *NotUntil for the retry time:
//
//	switch {
//	case errors.Is(err, gcra.ErrInsufficientCapacity):
//		// give up or split the batch
//	case errors.Is(err, gcra.ErrRateLimited):
//		// retry later
//	case err != nil:
//		// storage failure
//	}
package gcra
