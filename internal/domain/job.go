package domain

import "fmt"

// Status is the lifecycle state of a split job. StatusNone is special:
// it is never stored, only reported by lookups when no record exists,
// so a cleaned-up id is indistinguishable from one that never existed.
type Status string

const (
	StatusNone       Status = "NONE"
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusFinished   Status = "FINISHED"
	StatusError      Status = "ERROR"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// ParseStatus converts a protocol status word into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusNone, StatusPending, StatusProcessing, StatusFinished, StatusError:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown job status: %q", s)
	}
}

// Job is one separation request tracked by the store. The storage
// directory is derived from ID and is not persisted here.
type Job struct {
	ID     string
	Model  string
	Status Status
}
