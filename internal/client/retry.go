package client

import (
	"context"
	"time"
)

// Policy retries an operation a fixed number of times with a fixed
// delay between attempts.
type Policy struct {
	Attempts int
	Delay    time.Duration
}

// Do runs fn until it succeeds, the attempts are exhausted, or the
// context ends. It returns the last error fn produced.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < p.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}

		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}
