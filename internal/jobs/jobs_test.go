package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestStoreLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Record{ID: "job-1", Owner: "user-1", ReservedCredits: 10}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != StatusPending {
		t.Errorf("new job status = %q, want %q", got.Status, StatusPending)
	}

	if err := store.UpdateProgress(ctx, "job-1", "story_text", 40, "writing pages"); err != nil {
		t.Fatalf("UpdateProgress() error = %v", err)
	}
	got, _ = store.Get(ctx, "job-1")
	if got.Status != StatusProcessing || got.Progress != 40 || got.Stage != "story_text" {
		t.Errorf("after progress: status %q progress %d stage %q", got.Status, got.Progress, got.Stage)
	}

	result := json.RawMessage(`{"title":"x"}`)
	if err := store.Complete(ctx, "job-1", result, 8); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	got, _ = store.Get(ctx, "job-1")
	if got.Status != StatusCompleted || got.Progress != 100 {
		t.Errorf("after complete: status %q progress %d", got.Status, got.Progress)
	}
	if got.ReservedCredits != 0 {
		t.Errorf("ReservedCredits = %d, want 0 after terminal transition", got.ReservedCredits)
	}
	if got.CreditsUsed != 8 {
		t.Errorf("CreditsUsed = %d, want 8", got.CreditsUsed)
	}
	if got.FinishedAt == nil {
		t.Errorf("FinishedAt = nil, want set")
	}
}

func TestTerminalTransitionsHappenOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := &Record{ID: "job-1", Owner: "user-1", ReservedCredits: 10}
	if err := store.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Fail(ctx, "job-1", "provider down", nil); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	if err := store.Complete(ctx, "job-1", nil, 0); !errors.Is(err, ErrTerminal) {
		t.Errorf("Complete() after Fail() error = %v, want ErrTerminal", err)
	}
	if err := store.Fail(ctx, "job-1", "again", nil); !errors.Is(err, ErrTerminal) {
		t.Errorf("second Fail() error = %v, want ErrTerminal", err)
	}
	if err := store.UpdateProgress(ctx, "job-1", "x", 1, ""); !errors.Is(err, ErrTerminal) {
		t.Errorf("UpdateProgress() after Fail() error = %v, want ErrTerminal", err)
	}

	got, _ := store.Get(ctx, "job-1")
	if got.ReservedCredits != 0 {
		t.Errorf("ReservedCredits = %d, want 0 after failure", got.ReservedCredits)
	}
	if got.Error != "provider down" {
		t.Errorf("Error = %q, want the original failure", got.Error)
	}
}

func TestFailKeepsPartialResult(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Record{ID: "job-1", Owner: "user-1"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	partial := json.RawMessage(`{"partial":true,"scenes":3}`)
	if err := store.Fail(ctx, "job-1", "image provider quota", partial); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	got, _ := store.Get(ctx, "job-1")
	if string(got.Result) != string(partial) {
		t.Errorf("Result = %s, want preserved partial", got.Result)
	}
}

func TestGetMissingJob(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestLedgerReserveCommitRefund(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	if err := ledger.Grant(ctx, "user-1", 100); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	if err := ledger.Reserve(ctx, "user-1", 30); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	available, reserved, _ := ledger.Balance(ctx, "user-1")
	if available != 70 || reserved != 30 {
		t.Errorf("after reserve: available %d reserved %d, want 70/30", available, reserved)
	}

	// Job used 25 of its 30 reserved credits.
	if err := ledger.Commit(ctx, "user-1", 30, 25); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	available, reserved, _ = ledger.Balance(ctx, "user-1")
	if available != 75 || reserved != 0 {
		t.Errorf("after commit: available %d reserved %d, want 75/0", available, reserved)
	}

	// A failed job refunds everything.
	if err := ledger.Reserve(ctx, "user-1", 20); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if err := ledger.Refund(ctx, "user-1", 20); err != nil {
		t.Fatalf("Refund() error = %v", err)
	}
	available, reserved, _ = ledger.Balance(ctx, "user-1")
	if available != 75 || reserved != 0 {
		t.Errorf("after refund: available %d reserved %d, want 75/0", available, reserved)
	}
}

func TestLedgerRejectsOverdraft(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()

	if err := ledger.Grant(ctx, "user-1", 10); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}
	err := ledger.Reserve(ctx, "user-1", 11)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("Reserve() error = %v, want ErrInsufficientCredits", err)
	}
	available, reserved, _ := ledger.Balance(ctx, "user-1")
	if available != 10 || reserved != 0 {
		t.Errorf("failed reserve must not move credits: available %d reserved %d", available, reserved)
	}
}

func TestLedgerConcurrentReservations(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx := context.Background()
	if err := ledger.Grant(ctx, "user-1", 50); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ledger.Reserve(ctx, "user-1", 10); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 5 {
		t.Errorf("successful reservations = %d, want exactly 5 from a balance of 50", succeeded)
	}
	available, reserved, _ := ledger.Balance(ctx, "user-1")
	if available != 0 || reserved != 50 {
		t.Errorf("final balance: available %d reserved %d, want 0/50", available, reserved)
	}
}
