// Package client drives a split job through its full lifecycle against
// a stemsplit server: connect, submit, poll, download, cleanup.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stemsplit/stemsplit/internal/domain"
	"github.com/stemsplit/stemsplit/internal/version"
)

// Defaults applied by New for zero Options fields.
const (
	DefaultSubmitTimeout     = 2 * time.Second
	DefaultWarmupDelay       = 15 * time.Second
	DefaultPollInterval      = 5 * time.Second
	DefaultPollFailureBudget = 5
	DefaultDownloadAttempts  = 3
	DefaultDownloadDelay     = 5 * time.Second
)

// Terminal failure classes a caller can test with errors.Is.
var (
	ErrUnreachable         = errors.New("server unreachable")
	ErrSubmitFailed        = errors.New("submission failed")
	ErrJobFailed           = errors.New("job failed on server")
	ErrJobVanished         = errors.New("job record vanished")
	ErrPollBudgetExhausted = errors.New("poll retry budget exhausted")
	ErrDownloadFailed      = errors.New("download failed")
)

// Options configures a Client. Zero duration and count fields fall back
// to the package defaults.
type Options struct {
	// BaseURL is the server root, e.g. "http://192.168.1.20:5000".
	BaseURL string

	// Model is sent with submissions; empty lets the server choose.
	Model string

	SubmitTimeout     time.Duration
	WarmupDelay       time.Duration
	PollInterval      time.Duration
	PollFailureBudget int
	DownloadAttempts  int
	DownloadDelay     time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client is a retry-aware caller of the split protocol. It is safe for
// use by a single lifecycle at a time.
type Client struct {
	base  *url.URL
	model string

	submitTimeout     time.Duration
	warmupDelay       time.Duration
	pollInterval      time.Duration
	pollFailureBudget int
	download          Policy

	http   *http.Client
	logger *slog.Logger
}

// New creates a Client for the given server.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base url: %w", err)
	}

	c := &Client{
		base:              base,
		model:             opts.Model,
		submitTimeout:     opts.SubmitTimeout,
		warmupDelay:       opts.WarmupDelay,
		pollInterval:      opts.PollInterval,
		pollFailureBudget: opts.PollFailureBudget,
		download: Policy{
			Attempts: opts.DownloadAttempts,
			Delay:    opts.DownloadDelay,
		},
		http:   opts.HTTPClient,
		logger: opts.Logger,
	}

	if c.submitTimeout <= 0 {
		c.submitTimeout = DefaultSubmitTimeout
	}
	if c.warmupDelay <= 0 {
		c.warmupDelay = DefaultWarmupDelay
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.pollFailureBudget <= 0 {
		c.pollFailureBudget = DefaultPollFailureBudget
	}
	if c.download.Attempts <= 0 {
		c.download.Attempts = DefaultDownloadAttempts
	}
	if c.download.Delay <= 0 {
		c.download.Delay = DefaultDownloadDelay
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.base.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.ServiceName+"/"+version.Version)
	return req, nil
}

// Connect probes the server's liveness endpoint. Any failure means the
// server is unreachable; nothing has been submitted yet.
func (c *Client) Connect(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/connect", nil, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrUnreachable, resp.StatusCode)
	}

	var info struct {
		Service  string `json:"service"`
		Version  string `json:"version"`
		Protocol string `json:"protocol"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return fmt.Errorf("%w: malformed liveness response: %v", ErrUnreachable, err)
	}

	c.logger.Debug("Connected to server",
		slog.String("service", info.Service),
		slog.String("server_version", info.Version),
		slog.String("protocol", info.Protocol),
	)
	return nil
}

// Models fetches the model names the server accepts.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/models", nil, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrUnreachable, resp.StatusCode)
	}

	var models []string
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}
	return models, nil
}

// Submit uploads the mixture at path and returns the new job id. The
// call has a short timeout so an unreachable server fails fast.
func (c *Client) Submit(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer file.Close()

	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)

	fw, err := mw.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	if c.model != "" {
		if err := mw.WriteField("model", c.model); err != nil {
			return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodPost, "/split", nil, buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: server returned %d: %s", ErrSubmitFailed, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	jobID := strings.TrimSpace(string(body))
	if jobID == "" {
		return "", fmt.Errorf("%w: server returned an empty job id", ErrSubmitFailed)
	}
	return jobID, nil
}

// Status asks for the job's current lifecycle state.
func (c *Client) Status(ctx context.Context, jobID string) (domain.Status, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/status", url.Values{"uuid": {jobID}}, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read status response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	status, err := domain.ParseStatus(strings.TrimSpace(string(body)))
	if err != nil {
		return "", fmt.Errorf("malformed status response: %w", err)
	}
	return status, nil
}

// AwaitFinished polls until the job reaches FINISHED. ERROR and NONE
// are terminal failures; NONE after a successful submit means the
// record vanished and is never treated as still pending. Transient poll
// failures are tolerated up to a consecutive-failure budget that resets
// on any successful poll.
func (c *Client) AwaitFinished(ctx context.Context, jobID string) error {
	// The workload takes far longer than one poll interval; skip the
	// round trips that cannot succeed yet.
	if err := c.sleep(ctx, c.warmupDelay); err != nil {
		return err
	}

	failures := 0
	for {
		status, err := c.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			failures++
			c.logger.Warn("Status poll failed",
				slog.String("job_id", jobID),
				slog.Int("consecutive_failures", failures),
				slog.String("error", err.Error()),
			)
			if failures >= c.pollFailureBudget {
				return fmt.Errorf("%w: %d consecutive failures, last: %v", ErrPollBudgetExhausted, failures, err)
			}

			if err := c.sleep(ctx, c.pollInterval); err != nil {
				return err
			}
			continue
		}
		failures = 0

		switch status {
		case domain.StatusFinished:
			return nil
		case domain.StatusError:
			return ErrJobFailed
		case domain.StatusNone:
			return ErrJobVanished
		}

		c.logger.Debug("Job still in progress",
			slog.String("job_id", jobID),
			slog.String("status", string(status)),
		)

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			return err
		}
	}
}

// DownloadVocals fetches the vocals stem into dest.
func (c *Client) DownloadVocals(ctx context.Context, jobID, dest string) error {
	return c.downloadResult(ctx, jobID, "/result/vocals", dest)
}

// DownloadInstrumental fetches the instrumental stem into dest.
func (c *Client) DownloadInstrumental(ctx context.Context, jobID, dest string) error {
	return c.downloadResult(ctx, jobID, "/result/instrumental", dest)
}

func (c *Client) downloadResult(ctx context.Context, jobID, path, dest string) error {
	err := c.download.Do(ctx, func() error {
		return c.fetchTo(ctx, jobID, path, dest)
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDownloadFailed, path, err)
	}
	return nil
}

// fetchTo streams one result into dest via a temp file so a failed
// transfer never leaves a truncated artifact behind.
func (c *Client) fetchTo(ctx context.Context, jobID, path, dest string) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, url.Values{"uuid": {jobID}}, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// Cleanup asks the server to drop the job record and its storage.
func (c *Client) Cleanup(ctx context.Context, jobID string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/cleanup", url.Values{"uuid": {jobID}}, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cleanup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("cleanup returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Split runs the whole lifecycle for one input file: connect, submit,
// await the terminal state, download both stems, then clean up
// server-side regardless of download outcome. The two downloads fail
// independently; cleanup failures are logged, never escalated.
func (c *Client) Split(ctx context.Context, input, vocalsDest, instrumentalDest string) (string, error) {
	if err := c.Connect(ctx); err != nil {
		return "", err
	}

	jobID, err := c.Submit(ctx, input)
	if err != nil {
		return "", err
	}
	c.logger.Info("Job submitted",
		slog.String("job_id", jobID),
		slog.String("input", input),
	)

	if err := c.AwaitFinished(ctx, jobID); err != nil {
		if errors.Is(err, ErrJobFailed) {
			// The record is terminal, so it can be dropped now.
			c.cleanupQuietly(ctx, jobID)
		}
		return jobID, err
	}

	vocalsErr := c.DownloadVocals(ctx, jobID, vocalsDest)
	if vocalsErr != nil {
		c.logger.Error("Vocals download failed",
			slog.String("job_id", jobID),
			slog.String("error", vocalsErr.Error()),
		)
	}
	instrumentalErr := c.DownloadInstrumental(ctx, jobID, instrumentalDest)
	if instrumentalErr != nil {
		c.logger.Error("Instrumental download failed",
			slog.String("job_id", jobID),
			slog.String("error", instrumentalErr.Error()),
		)
	}

	c.cleanupQuietly(ctx, jobID)

	if err := errors.Join(vocalsErr, instrumentalErr); err != nil {
		return jobID, err
	}
	return jobID, nil
}

func (c *Client) cleanupQuietly(ctx context.Context, jobID string) {
	if err := c.Cleanup(ctx, jobID); err != nil {
		c.logger.Warn("Cleanup failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}
	c.logger.Debug("Job cleaned up",
		slog.String("job_id", jobID),
	)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
