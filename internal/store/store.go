// Package store tracks split jobs and their admission order. Both
// implementations serialize every operation, so request handlers and the
// worker can share one store without further locking.
package store

import (
	"context"

	"github.com/stemsplit/stemsplit/internal/domain"
)

// JobStore owns the id → job mapping and the FIFO admission queue.
type JobStore interface {
	// Enqueue records a new PENDING job at the tail of the admission
	// queue. Returns domain.ErrJobExists if the id is already tracked.
	Enqueue(ctx context.Context, id, model string) error

	// DequeueNext pops the head of the admission queue and marks it
	// PROCESSING in the same critical section, so no observer ever sees
	// a claimed job still PENDING. Returns (nil, nil) when the queue is
	// empty.
	DequeueNext(ctx context.Context) (*domain.Job, error)

	// SetStatus updates a job's status in place. Returns
	// domain.ErrJobNotFound for unknown ids.
	SetStatus(ctx context.Context, id string, status domain.Status) error

	// Get returns the job record, or domain.ErrJobNotFound.
	Get(ctx context.Context, id string) (*domain.Job, error)

	// GetStatus returns the job's status, StatusNone for unknown ids.
	GetStatus(ctx context.Context, id string) (domain.Status, error)

	// Remove deletes the record. It refuses (false) when the id is
	// unknown or the job is still PENDING or PROCESSING, since its
	// storage may be in use.
	Remove(ctx context.Context, id string) (bool, error)

	// RemoveAll deletes every record, or refuses (false) and changes
	// nothing while any job is PENDING or PROCESSING.
	RemoveAll(ctx context.Context) (bool, error)
}
