package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestSaveUpsertsLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := SavePayload(ctx, store, "job-1", StepPage, 3, map[string]int{"score": 40}); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}
	if err := SavePayload(ctx, store, "job-1", StepPage, 3, map[string]int{"score": 70}); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}

	var payload map[string]int
	if err := LoadPayload(ctx, store, "job-1", StepPage, 3, &payload); err != nil {
		t.Fatalf("LoadPayload() error = %v", err)
	}
	if payload["score"] != 70 {
		t.Errorf("payload score = %d, want 70 (second write must win)", payload["score"])
	}

	all, err := store.List(ctx, "job-1", StepPage)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("rows after upsert = %d, want 1", len(all))
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Get(context.Background(), "job-1", StepOutline, 0)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestListOrdersByIndexIncludingCovers(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, idx := range []int{5, -2, 0, 2, -1} {
		if err := SavePayload(ctx, store, "job-1", StepPage, idx, idx); err != nil {
			t.Fatalf("SavePayload(%d) error = %v", idx, err)
		}
	}

	got, err := store.List(ctx, "job-1", StepPage)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []int{-2, -1, 0, 2, 5}
	if len(got) != len(want) {
		t.Fatalf("List() returned %d rows, want %d", len(got), len(want))
	}
	for i, cp := range got {
		if cp.Index != want[i] {
			t.Errorf("row %d index = %d, want %d", i, cp.Index, want[i])
		}
	}
}

func TestListAllScopedToJob(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := SavePayload(ctx, store, "job-1", StepOutline, 0, "a"); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}
	if err := SavePayload(ctx, store, "job-1", StepPage, 1, "b"); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}
	if err := SavePayload(ctx, store, "job-2", StepPage, 1, "c"); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}

	all, err := store.ListAll(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListAll() rows = %d, want 2", len(all))
	}

	if err := store.DeleteJob(ctx, "job-1"); err != nil {
		t.Fatalf("DeleteJob() error = %v", err)
	}
	all, _ = store.ListAll(ctx, "job-1")
	if len(all) != 0 {
		t.Errorf("ListAll() after DeleteJob = %d rows, want 0", len(all))
	}
	other, _ := store.ListAll(ctx, "job-2")
	if len(other) != 1 {
		t.Errorf("other job rows = %d, want 1 (DeleteJob must be scoped)", len(other))
	}
}

func TestListAllReplaysInCreationOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// A cover finishes first, then a page, then the cover's checkpoint is
	// overwritten with its scored version. Replay order must stay
	// cover, page.
	if err := SavePayload(ctx, store, "job-1", StepCover, 0, "pending"); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}
	if err := SavePayload(ctx, store, "job-1", StepPage, 1, "scene"); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}
	if err := SavePayload(ctx, store, "job-1", StepCover, 0, "scored"); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}

	all, err := store.ListAll(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListAll() rows = %d, want 2", len(all))
	}
	if all[0].Step != StepCover || all[1].Step != StepPage {
		t.Errorf("ListAll() order = [%s %s], want [%s %s]", all[0].Step, all[1].Step, StepCover, StepPage)
	}
	var payload string
	if err := json.Unmarshal(all[0].Payload, &payload); err != nil || payload != "scored" {
		t.Errorf("cover payload = %q (err %v), want overwrite to win", payload, err)
	}
	if all[0].CreatedAt.After(all[0].UpdatedAt) {
		t.Errorf("CreatedAt %v after UpdatedAt %v, overwrite must keep the original", all[0].CreatedAt, all[0].UpdatedAt)
	}
}

func TestSaveErrorInjection(t *testing.T) {
	store := NewMemoryStore()
	store.SaveErr = errors.New("disk full")

	err := store.Save(context.Background(), Checkpoint{JobID: "job-1", Step: StepOutline})
	if err == nil || err.Error() != "disk full" {
		t.Errorf("Save() error = %v, want injected failure", err)
	}
	if store.Saves() != 0 {
		t.Errorf("Saves() = %d, want 0", store.Saves())
	}
}

func TestSaveStampsUpdatedAt(t *testing.T) {
	store := NewMemoryStore()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := SavePayload(ctx, store, "job-1", StepOutline, 0, "x"); err != nil {
		t.Fatalf("SavePayload() error = %v", err)
	}
	cp, err := store.Get(ctx, "job-1", StepOutline, 0)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !cp.UpdatedAt.Equal(fixed) {
		t.Errorf("UpdatedAt = %v, want %v", cp.UpdatedAt, fixed)
	}
}
