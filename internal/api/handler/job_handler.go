package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/stemsplit/stemsplit/internal/domain"
)

// Submit handles POST /split
// Stores the uploaded mixture and queues it for separation.
func (h *JobHandler) Submit(c *gin.Context) {
	file, err := c.FormFile("audio")
	if err != nil {
		c.String(http.StatusBadRequest, "No audio file provided")
		return
	}

	model := c.PostForm("model")
	if model == "" {
		model = c.Query("model")
	}
	if model == "" {
		model = h.defaultModel
	} else if !slices.Contains(h.models, model) {
		c.String(http.StatusBadRequest, "Unknown model: %s", model)
		return
	}

	jobID := uuid.New().String()

	if err := h.dirs.Allocate(jobID); err != nil {
		h.logger.Error("Failed to allocate job directory",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.String(http.StatusInternalServerError, "Failed to store upload")
		return
	}

	if err := c.SaveUploadedFile(file, h.dirs.InputPath(jobID)); err != nil {
		h.logger.Error("Failed to save upload",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		_ = h.dirs.Remove(jobID)
		c.String(http.StatusInternalServerError, "Failed to store upload")
		return
	}

	if err := h.store.Enqueue(c.Request.Context(), jobID, model); err != nil {
		h.logger.Error("Failed to enqueue job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		_ = h.dirs.Remove(jobID)
		c.String(http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	h.logger.Info("Job submitted",
		slog.String("job_id", jobID),
		slog.String("model", model),
		slog.String("filename", file.Filename),
		slog.Int64("size", file.Size),
	)

	c.String(http.StatusOK, jobID)
}

// Status handles GET /status
// Unknown ids are NONE, not an error.
func (h *JobHandler) Status(c *gin.Context) {
	jobID := c.Query("uuid")

	status, err := h.store.GetStatus(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to look up status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.String(http.StatusInternalServerError, "Failed to look up status")
		return
	}

	c.String(http.StatusOK, string(status))
}

// Vocals handles GET /result/vocals
func (h *JobHandler) Vocals(c *gin.Context) {
	h.serveResult(c, h.dirs.VocalsPath)
}

// Instrumental handles GET /result/instrumental
func (h *JobHandler) Instrumental(c *gin.Context) {
	h.serveResult(c, h.dirs.InstrumentalPath)
}

// serveResult streams one output file. Results exist only once the job
// is FINISHED; anything earlier is a defined error, not a guess at
// whatever is on disk.
func (h *JobHandler) serveResult(c *gin.Context, pathFor func(jobID, model string) string) {
	jobID := c.Query("uuid")

	job, err := h.store.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.String(http.StatusNotFound, "Unknown uuid")
			return
		}
		h.logger.Error("Failed to look up job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.String(http.StatusInternalServerError, "Failed to look up job")
		return
	}

	if job.Status != domain.StatusFinished {
		c.String(http.StatusConflict, "Job is not finished")
		return
	}

	path := pathFor(job.ID, job.Model)
	if _, err := os.Stat(path); err != nil {
		h.logger.Error("Result file missing",
			slog.String("job_id", jobID),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		c.String(http.StatusInternalServerError, "Result file missing")
		return
	}

	c.File(path)
}

// Cleanup handles POST /cleanup
// Removes one finished or failed job and its storage directory.
func (h *JobHandler) Cleanup(c *gin.Context) {
	jobID := c.Query("uuid")

	removed, err := h.store.Remove(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to remove job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.String(http.StatusInternalServerError, "Failed")
		return
	}
	if !removed {
		c.String(http.StatusInternalServerError, "Failed")
		return
	}

	if err := h.dirs.Remove(jobID); err != nil {
		h.logger.Error("Failed to delete job directory",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.String(http.StatusInternalServerError, "Failed")
		return
	}

	h.logger.Info("Job cleaned up",
		slog.String("job_id", jobID),
	)

	c.String(http.StatusOK, "Success")
}

// CleanupAll handles POST /cleanupall
// Clears every record and job directory unless something is still
// queued or running.
func (h *JobHandler) CleanupAll(c *gin.Context) {
	cleared, err := h.store.RemoveAll(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to clear jobs",
			slog.String("error", err.Error()),
		)
		c.String(http.StatusInternalServerError, "Failed")
		return
	}
	if !cleared {
		c.String(http.StatusInternalServerError, "Failed")
		return
	}

	if err := h.dirs.RemoveAll(); err != nil {
		h.logger.Error("Failed to delete job directories",
			slog.String("error", err.Error()),
		)
		c.String(http.StatusInternalServerError, "Failed")
		return
	}

	h.logger.Info("All jobs cleaned up")

	c.String(http.StatusOK, "Success")
}
