package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists credit balances in Postgres. Each operation
// locks the owner's row with SELECT ... FOR UPDATE, so concurrent
// reservations serialize at the database and a resumed process sees the
// same balances the crashed one left behind.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresLedger creates a ledger on the given pool.
func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

// Migrate creates the credit_accounts table if it does not exist.
func (l *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS credit_accounts (
			owner     TEXT   PRIMARY KEY,
			available BIGINT NOT NULL DEFAULT 0,
			reserved  BIGINT NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("migrate credit accounts: %w", err)
	}
	return nil
}

// withAccount runs fn against the owner's locked row inside a
// transaction. fn returns the new available and reserved amounts.
func (l *PostgresLedger) withAccount(ctx context.Context, owner string, fn func(available, reserved int) (int, int, error)) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO credit_accounts (owner) VALUES ($1)
		ON CONFLICT (owner) DO NOTHING`, owner); err != nil {
		return fmt.Errorf("ensure account %s: %w", owner, err)
	}

	var available, reserved int
	if err := tx.QueryRow(ctx, `
		SELECT available, reserved FROM credit_accounts
		WHERE owner = $1
		FOR UPDATE`, owner,
	).Scan(&available, &reserved); err != nil {
		return fmt.Errorf("lock account %s: %w", owner, err)
	}

	available, reserved, err = fn(available, reserved)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE credit_accounts SET available = $2, reserved = $3
		WHERE owner = $1`, owner, available, reserved); err != nil {
		return fmt.Errorf("update account %s: %w", owner, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Balance(ctx context.Context, owner string) (int, int, error) {
	var available, reserved int
	err := l.pool.QueryRow(ctx, `
		SELECT available, reserved FROM credit_accounts
		WHERE owner = $1`, owner,
	).Scan(&available, &reserved)
	// Accounts are created lazily; an unknown owner has zero of both.
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("balance %s: %w", owner, err)
	}
	return available, reserved, nil
}

func (l *PostgresLedger) Reserve(ctx context.Context, owner string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("reserve %d: amount must not be negative", amount)
	}
	return l.withAccount(ctx, owner, func(available, reserved int) (int, int, error) {
		if available < amount {
			return 0, 0, fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, amount, available)
		}
		return available - amount, reserved + amount, nil
	})
}

func (l *PostgresLedger) Commit(ctx context.Context, owner string, reservedAmount, used int) error {
	if used > reservedAmount {
		used = reservedAmount
	}
	return l.withAccount(ctx, owner, func(available, reserved int) (int, int, error) {
		if reserved < reservedAmount {
			return 0, 0, fmt.Errorf("commit %d: only %d reserved for %s", reservedAmount, reserved, owner)
		}
		return available + reservedAmount - used, reserved - reservedAmount, nil
	})
}

func (l *PostgresLedger) Refund(ctx context.Context, owner string, reservedAmount int) error {
	return l.withAccount(ctx, owner, func(available, reserved int) (int, int, error) {
		if reserved < reservedAmount {
			return 0, 0, fmt.Errorf("refund %d: only %d reserved for %s", reservedAmount, reserved, owner)
		}
		return available + reservedAmount, reserved - reservedAmount, nil
	})
}

func (l *PostgresLedger) Grant(ctx context.Context, owner string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("grant %d: amount must not be negative", amount)
	}
	return l.withAccount(ctx, owner, func(available, reserved int) (int, int, error) {
		return available + amount, reserved, nil
	})
}
