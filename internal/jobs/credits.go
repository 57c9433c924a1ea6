package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInsufficientCredits is returned when an account cannot cover a
// reservation.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Ledger manages per-account credit balances. Credits are reserved when
// a job is accepted, then either committed (consumed, with the unused
// remainder returned) or refunded in full at the terminal transition.
type Ledger interface {
	// Balance returns the spendable and reserved amounts for an account.
	Balance(ctx context.Context, owner string) (available, reserved int, err error)

	// Reserve moves amount from available to reserved, or returns
	// ErrInsufficientCredits.
	Reserve(ctx context.Context, owner string, amount int) error

	// Commit consumes used credits out of a reservation and returns the
	// remainder to the available balance.
	Commit(ctx context.Context, owner string, reserved, used int) error

	// Refund returns an entire reservation to the available balance.
	Refund(ctx context.Context, owner string, reserved int) error

	// Grant adds credits to an account's available balance.
	Grant(ctx context.Context, owner string, amount int) error
}

type account struct {
	available int
	reserved  int
}

// MemoryLedger is an in-memory Ledger. Each account is updated under a
// single lock, so concurrent reservations for one owner serialize and
// cannot overspend.
type MemoryLedger struct {
	mu       sync.Mutex
	accounts map[string]*account
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{accounts: make(map[string]*account)}
}

func (l *MemoryLedger) account(owner string) *account {
	acct, ok := l.accounts[owner]
	if !ok {
		acct = &account{}
		l.accounts[owner] = acct
	}
	return acct
}

func (l *MemoryLedger) Balance(_ context.Context, owner string) (int, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.account(owner)
	return acct.available, acct.reserved, nil
}

func (l *MemoryLedger) Reserve(_ context.Context, owner string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("reserve %d: amount must not be negative", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.account(owner)
	if acct.available < amount {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientCredits, amount, acct.available)
	}
	acct.available -= amount
	acct.reserved += amount
	return nil
}

func (l *MemoryLedger) Commit(_ context.Context, owner string, reserved, used int) error {
	if used > reserved {
		used = reserved
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.account(owner)
	if acct.reserved < reserved {
		return fmt.Errorf("commit %d: only %d reserved for %s", reserved, acct.reserved, owner)
	}
	acct.reserved -= reserved
	acct.available += reserved - used
	return nil
}

func (l *MemoryLedger) Refund(_ context.Context, owner string, reserved int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	acct := l.account(owner)
	if acct.reserved < reserved {
		return fmt.Errorf("refund %d: only %d reserved for %s", reserved, acct.reserved, owner)
	}
	acct.reserved -= reserved
	acct.available += reserved
	return nil
}

func (l *MemoryLedger) Grant(_ context.Context, owner string, amount int) error {
	if amount < 0 {
		return fmt.Errorf("grant %d: amount must not be negative", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(owner).available += amount
	return nil
}
