// Package jobdir manages the per-job storage area. Every job owns one
// directory under the root for its entire lifetime: the uploaded input
// lands there, the separator writes its stems there, and cleanup removes
// the whole directory.
package jobdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	inputFileName        = "input.mp3"
	vocalsFileName       = "vocals.mp3"
	instrumentalFileName = "no_vocals.mp3"

	// demucs names the track directory after the input file stem.
	trackDirName = "input"
)

// Allocator hands out and tears down job directories under a fixed root.
type Allocator struct {
	root string
}

// NewAllocator creates the root directory if needed.
func NewAllocator(root string) (*Allocator, error) {
	if root == "" {
		return nil, fmt.Errorf("job directory root is required")
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create job directory root: %w", err)
	}

	return &Allocator{root: root}, nil
}

// Allocate creates the exclusive directory for a new job. It fails if the
// directory already exists, since ids are never reused.
func (a *Allocator) Allocate(id string) error {
	if err := os.Mkdir(a.Dir(id), 0o755); err != nil {
		return fmt.Errorf("failed to allocate job directory: %w", err)
	}
	return nil
}

// Dir returns the job's directory.
func (a *Allocator) Dir(id string) string {
	return filepath.Join(a.root, id)
}

// InputPath returns where the job's uploaded audio is stored.
func (a *Allocator) InputPath(id string) string {
	return filepath.Join(a.Dir(id), inputFileName)
}

// VocalsPath returns where the separator leaves the vocal stem for the
// given model.
func (a *Allocator) VocalsPath(id, model string) string {
	return filepath.Join(a.Dir(id), model, trackDirName, vocalsFileName)
}

// InstrumentalPath returns where the separator leaves the instrumental
// stem for the given model.
func (a *Allocator) InstrumentalPath(id, model string) string {
	return filepath.Join(a.Dir(id), model, trackDirName, instrumentalFileName)
}

// Remove deletes the job's directory and everything in it.
func (a *Allocator) Remove(id string) error {
	if err := os.RemoveAll(a.Dir(id)); err != nil {
		return fmt.Errorf("failed to remove job directory: %w", err)
	}
	return nil
}

// RemoveAll deletes every job directory under the root. The root itself
// and any stray non-directory entries are left alone.
func (a *Allocator) RemoveAll() error {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return fmt.Errorf("failed to list job directories: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if err := os.RemoveAll(filepath.Join(a.root, entry.Name())); err != nil {
			return fmt.Errorf("failed to remove job directory %s: %w", entry.Name(), err)
		}
	}

	return nil
}
