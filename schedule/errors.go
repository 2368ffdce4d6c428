package schedule

import "errors"

var (
	// ErrProcessorRequired is returned when no batch processor is provided.
	ErrProcessorRequired = errors.New("batch processor required")

	// ErrCheckpointsRequired is returned when no checkpoint repository is provided.
	ErrCheckpointsRequired = errors.New("checkpoint repository required")

	// ErrAlreadyRunning is returned by RunOnce while a previous run is in progress.
	ErrAlreadyRunning = errors.New("worker run already in progress")
)
