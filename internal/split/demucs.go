package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// maxOutputTail bounds how much subprocess output is kept for error
// messages. Demucs prints a progress bar per chunk, so full capture
// would grow with track length.
const maxOutputTail = 4 << 10

// Demucs invokes the demucs CLI to split a mixture into a vocals stem
// and an instrumental stem.
type Demucs struct {
	binary  string
	bitrate int
	jobs    int
	logger  *slog.Logger
}

// NewDemucs creates a runner. The bitrate and job count apply to every
// run; the model is chosen per job.
func NewDemucs(binary string, bitrate, jobs int, logger *slog.Logger) *Demucs {
	return &Demucs{
		binary:  binary,
		bitrate: bitrate,
		jobs:    jobs,
		logger:  logger,
	}
}

// checkArgs rejects a run that could only fail, so the job carries a
// precise error instead of whatever demucs prints about a bad path.
func (d *Demucs) checkArgs(args Args) error {
	if err := args.Validate(); err != nil {
		return err
	}

	if _, err := os.Stat(args.Input); err != nil {
		return fmt.Errorf("input file: %w", err)
	}

	info, err := os.Stat(args.OutputDir)
	if err != nil {
		return fmt.Errorf("output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("output directory %s is not a directory", args.OutputDir)
	}

	return nil
}

func (d *Demucs) argv(args Args) []string {
	return []string{
		"--mp3",
		fmt.Sprintf("--mp3-bitrate=%d", d.bitrate),
		"--two-stems=vocals",
		"-n", args.Model,
		"-j", strconv.Itoa(d.jobs),
		"-o", args.OutputDir,
		args.Input,
	}
}

// Separate runs demucs and blocks until it exits. Canceling the context
// kills the subprocess.
func (d *Demucs) Separate(ctx context.Context, args Args) error {
	if err := d.checkArgs(args); err != nil {
		return fmt.Errorf("invalid separation args: %w", err)
	}

	tail := &tailBuffer{max: maxOutputTail}
	cmd := exec.CommandContext(ctx, d.binary, d.argv(args)...)
	cmd.Stdout = tail
	cmd.Stderr = tail

	d.logger.Info("Running separation",
		slog.String("input", args.Input),
		slog.String("model", args.Model),
	)

	start := time.Now()
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited with code %d: %s", d.binary, exitErr.ExitCode(), tail.String())
		}
		return fmt.Errorf("failed to run %s: %w", d.binary, err)
	}

	d.logger.Info("Separation finished",
		slog.String("input", args.Input),
		slog.String("model", args.Model),
		slog.Duration("took", time.Since(start)),
	)
	return nil
}
