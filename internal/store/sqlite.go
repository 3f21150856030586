package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/stemsplit/stemsplit/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id     TEXT NOT NULL UNIQUE,
		model      TEXT NOT NULL,
		status     TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)
`

// SQLite is the durable JobStore. Queue order is the insertion order of
// the jobs table; the PENDING rows are the queue.
type SQLite struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSQLite creates the schema if needed and fails over jobs left behind
// by a previous run: a PENDING or PROCESSING row whose worker is gone can
// never complete, so it becomes ERROR rather than lying to pollers.
func NewSQLite(db *sqlx.DB, logger *slog.Logger) (*SQLite, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create jobs schema: %w", err)
	}

	s := &SQLite{
		db:     db,
		logger: logger,
	}

	if err := s.failOrphans(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLite) failOrphans() error {
	res, err := s.db.Exec(
		`UPDATE jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE status IN (?, ?)`,
		string(domain.StatusError), string(domain.StatusPending), string(domain.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to fail orphaned jobs: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Warn("Failed orphaned jobs from previous run",
			slog.Int64("count", n),
		)
	}

	return nil
}

func (s *SQLite) Enqueue(ctx context.Context, id, model string) error {
	query := `
		INSERT INTO jobs (job_id, model, status)
		VALUES (?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, id, model, string(domain.StatusPending))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return domain.ErrJobExists
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

func (s *SQLite) DequeueNext(ctx context.Context) (*domain.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin dequeue transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		id    string
		model string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT job_id, model FROM jobs WHERE status = ? ORDER BY seq LIMIT 1`,
		string(domain.StatusPending),
	).Scan(&id, &model)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read queue head: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE job_id = ?`,
		string(domain.StatusProcessing), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit dequeue: %w", err)
	}

	return &domain.Job{ID: id, Model: model, Status: domain.StatusProcessing}, nil
}

func (s *SQLite) SetStatus(ctx context.Context, id string, status domain.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE job_id = ?`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}

	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, model, status FROM jobs WHERE job_id = ?`, id,
	).Scan(&job.ID, &job.Model, &status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Status = domain.Status(status)
	return &job, nil
}

func (s *SQLite) GetStatus(ctx context.Context, id string) (domain.Status, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM jobs WHERE job_id = ?`, id,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.StatusNone, nil
		}
		return domain.StatusNone, fmt.Errorf("failed to get job status: %w", err)
	}

	return domain.Status(status), nil
}

func (s *SQLite) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE job_id = ? AND status NOT IN (?, ?)`,
		id, string(domain.StatusPending), string(domain.StatusProcessing),
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return n > 0, nil
}

func (s *SQLite) RemoveAll(ctx context.Context) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin remove transaction: %w", err)
	}
	defer tx.Rollback()

	var active int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE status IN (?, ?)`,
		string(domain.StatusPending), string(domain.StatusProcessing),
	).Scan(&active)
	if err != nil {
		return false, fmt.Errorf("failed to count active jobs: %w", err)
	}
	if active > 0 {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return false, fmt.Errorf("failed to remove jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit remove: %w", err)
	}

	return true, nil
}
