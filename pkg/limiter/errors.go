package limiter

import "errors"

var (
	// ErrClockCannotWait indicates that a waiting operation was used with a
	// clock that does not implement clock.Waiter.
	ErrClockCannotWait = errors.New("clock cannot wait")

	// ErrStateContention indicates that a decision kept losing optimistic
	// transactions to concurrent writers and gave up.
	ErrStateContention = errors.New("state contention")

	// ErrInvalidRedisValue indicates that a stored value could not be parsed.
	ErrInvalidRedisValue = errors.New("invalid value in redis")
)
