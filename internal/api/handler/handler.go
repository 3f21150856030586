package handler

import (
	"log/slog"

	"github.com/stemsplit/stemsplit/internal/jobdir"
	"github.com/stemsplit/stemsplit/internal/store"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Store        store.JobStore
	Dirs         *jobdir.Allocator
	Models       []string
	DefaultModel string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger       *slog.Logger
	store        store.JobStore
	dirs         *jobdir.Allocator
	models       []string
	defaultModel string
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:       deps.Logger,
		store:        deps.Store,
		dirs:         deps.Dirs,
		models:       deps.Models,
		defaultModel: deps.DefaultModel,
	}
}
