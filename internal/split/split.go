// Package split runs audio source separation for queued jobs.
package split

import (
	"context"
	"errors"
)

// Args describes one separation run. Process-wide settings such as the
// bitrate and the worker thread count belong to the runner, not here.
type Args struct {
	// Input is the path of the uploaded mixture file.
	Input string

	// OutputDir is the directory the runner writes stems under. Demucs
	// creates <model>/<track>/ inside it.
	OutputDir string

	// Model is the separation model to apply.
	Model string
}

// Validate reports the first structurally missing field.
func (a Args) Validate() error {
	if a.Input == "" {
		return errors.New("input path is required")
	}
	if a.OutputDir == "" {
		return errors.New("output directory is required")
	}
	if a.Model == "" {
		return errors.New("model is required")
	}
	return nil
}

// Separator produces the stem files for a job.
type Separator interface {
	Separate(ctx context.Context, args Args) error
}
