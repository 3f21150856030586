package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job id has no record in the store
	ErrJobNotFound = errors.New("job not found")

	// ErrJobExists is returned when enqueueing an id that is already tracked
	ErrJobExists = errors.New("job already exists")
)
