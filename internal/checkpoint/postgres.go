package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists checkpoints in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a checkpoint store on the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the checkpoints table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS checkpoints (
			job_id     TEXT        NOT NULL,
			step       TEXT        NOT NULL,
			idx        INT         NOT NULL,
			payload    JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (job_id, step, idx)
		)`)
	if err != nil {
		return fmt.Errorf("migrate checkpoints: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, cp Checkpoint) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (job_id, step, idx, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (job_id, step, idx)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()`,
		cp.JobID, cp.Step, cp.Index, cp.Payload)
	if err != nil {
		return fmt.Errorf("save checkpoint %s/%s/%d: %w", cp.JobID, cp.Step, cp.Index, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID, step string, index int) (*Checkpoint, error) {
	var cp Checkpoint
	err := s.pool.QueryRow(ctx, `
		SELECT job_id, step, idx, payload, created_at, updated_at
		FROM checkpoints
		WHERE job_id = $1 AND step = $2 AND idx = $3`,
		jobID, step, index,
	).Scan(&cp.JobID, &cp.Step, &cp.Index, &cp.Payload, &cp.CreatedAt, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get checkpoint %s/%s/%d: %w", jobID, step, index, err)
	}
	return &cp, nil
}

func (s *PostgresStore) List(ctx context.Context, jobID, step string) ([]Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, step, idx, payload, created_at, updated_at
		FROM checkpoints
		WHERE job_id = $1 AND step = $2
		ORDER BY idx`,
		jobID, step)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints %s/%s: %w", jobID, step, err)
	}
	defer rows.Close()
	return scanCheckpoints(rows)
}

func (s *PostgresStore) ListAll(ctx context.Context, jobID string) ([]Checkpoint, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT job_id, step, idx, payload, created_at, updated_at
		FROM checkpoints
		WHERE job_id = $1
		ORDER BY step, idx`,
		jobID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints %s: %w", jobID, err)
	}
	defer rows.Close()
	return scanCheckpoints(rows)
}

func (s *PostgresStore) DeleteJob(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM checkpoints WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete checkpoints %s: %w", jobID, err)
	}
	return nil
}

func scanCheckpoints(rows pgx.Rows) ([]Checkpoint, error) {
	var out []Checkpoint
	for rows.Next() {
		var cp Checkpoint
		if err := rows.Scan(&cp.JobID, &cp.Step, &cp.Index, &cp.Payload, &cp.CreatedAt, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
