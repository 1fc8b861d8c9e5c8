package scheduler

import "errors"

var (
	// ErrSweeperNotRunning is returned when triggering a sweep on a stopped sweeper
	ErrSweeperNotRunning = errors.New("sweeper is not running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid sweeper configuration")
)
