package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists job records in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a job store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the jobs table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS jobs (
			id               TEXT PRIMARY KEY,
			owner_id         TEXT        NOT NULL,
			status           TEXT        NOT NULL,
			stage            TEXT        NOT NULL DEFAULT '',
			progress         INT         NOT NULL DEFAULT 0,
			message          TEXT        NOT NULL DEFAULT '',
			reserved_credits INT         NOT NULL DEFAULT 0,
			credits_used     INT         NOT NULL DEFAULT 0,
			result           JSONB,
			error            TEXT        NOT NULL DEFAULT '',
			input            JSONB,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			finished_at      TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS jobs_owner_idx ON jobs (owner_id, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("migrate jobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, job *Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (id, owner_id, status, reserved_credits, input)
		VALUES ($1, $2, $3, $4, $5)`,
		job.ID, job.Owner, StatusPending, job.ReservedCredits, job.Input)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.ID, err)
	}
	job.Status = StatusPending
	return nil
}

const jobColumns = `id, owner_id, status, stage, progress, message,
	reserved_credits, credits_used, result, error, input,
	created_at, updated_at, finished_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, owner string) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE owner_id = $1 ORDER BY created_at DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", owner, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id, stage string, progress int, message string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, stage = $3, progress = $4, message = $5, updated_at = now()
		WHERE id = $1 AND status NOT IN ($6, $7)`,
		id, StatusProcessing, stage, progress, message, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return s.checkLive(ctx, id, tag.RowsAffected())
}

func (s *PostgresStore) Complete(ctx context.Context, id string, result json.RawMessage, creditsUsed int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, progress = 100, result = $3, credits_used = $4,
		    reserved_credits = 0, updated_at = now(), finished_at = now()
		WHERE id = $1 AND status NOT IN ($5, $6)`,
		id, StatusCompleted, result, creditsUsed, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return s.checkLive(ctx, id, tag.RowsAffected())
}

func (s *PostgresStore) Fail(ctx context.Context, id, errMsg string, partial json.RawMessage) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, error = $3, result = $4,
		    reserved_credits = 0, updated_at = now(), finished_at = now()
		WHERE id = $1 AND status NOT IN ($5, $6)`,
		id, StatusFailed, errMsg, partial, StatusCompleted, StatusFailed)
	if err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return s.checkLive(ctx, id, tag.RowsAffected())
}

// checkLive distinguishes a missing job from a finished one when a
// guarded update matched no rows.
func (s *PostgresStore) checkLive(ctx context.Context, id string, affected int64) error {
	if affected > 0 {
		return nil
	}
	var status Status
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check job %s: %w", id, err)
	}
	if status.Terminal() {
		return ErrTerminal
	}
	return fmt.Errorf("update job %s: no rows affected", id)
}

func scanJob(row pgx.Row) (*Record, error) {
	var job Record
	err := row.Scan(
		&job.ID, &job.Owner, &job.Status, &job.Stage, &job.Progress, &job.Message,
		&job.ReservedCredits, &job.CreditsUsed, &job.Result, &job.Error, &job.Input,
		&job.CreatedAt, &job.UpdatedAt, &job.FinishedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
