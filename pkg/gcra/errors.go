package gcra

import "errors"

var (
	// ErrInvalidQuota indicates that a quota cannot be constructed from the given values.
	ErrInvalidQuota = errors.New("invalid quota")

	// ErrInvalidCellCount indicates that a batch asked for zero cells.
	ErrInvalidCellCount = errors.New("invalid cell count")

	// ErrRateLimited matches every negative decision that may succeed later:
	// *NotUntil and *BatchNonConforming.
	ErrRateLimited = errors.New("rate limited")

	// ErrInsufficientCapacity matches *InsufficientCapacity. A batch rejected
	// with it can never succeed and must not be retried as is.
	ErrInsufficientCapacity = errors.New("insufficient capacity")
)
