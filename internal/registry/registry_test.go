package registry

import (
	"context"
	"testing"
	"time"

	"quill/internal/store"
	"quill/internal/testsupport"
)

func newTestRegistry(t *testing.T, ttl time.Duration) (*Registry, *store.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reg := New(st, Options{TTL: ttl, SweepInterval: time.Hour}, nil)
	return reg, st
}

func runningRecord(id string) *store.ProcessRecord {
	return &store.ProcessRecord{
		ProcessID: id,
		Status:    store.ProcessRunning,
		StartedAt: time.Now().UTC(),
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Hour)
	reg.Register(runningRecord("process_1_aaa"))

	got, err := reg.Get(context.Background(), "process_1_aaa")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Status != store.ProcessRunning {
		t.Fatalf("record = %+v", got)
	}
}

func TestGetReturnsSnapshotNotLiveRecord(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Hour)
	record := runningRecord("process_1_bbb")
	reg.Register(record)

	got, err := reg.Get(context.Background(), "process_1_bbb")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Status = store.ProcessFailed

	again, err := reg.Get(context.Background(), "process_1_bbb")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Status != store.ProcessRunning {
		t.Fatal("caller mutation leaked into registry")
	}
}

func TestUpdatePublishesProgress(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Hour)
	record := runningRecord("process_1_ccc")
	reg.Register(record)

	record.ItemResults = append(record.ItemResults, store.ItemResult{Title: "one", Status: store.ItemSuccess})
	reg.Update(record)

	got, err := reg.Get(context.Background(), "process_1_ccc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.ItemResults) != 1 {
		t.Fatalf("item results = %d", len(got.ItemResults))
	}
}

func TestCompletePersistsToStore(t *testing.T) {
	reg, st := newTestRegistry(t, time.Hour)
	record := runningRecord("process_1_ddd")
	reg.Register(record)

	ended := time.Now().UTC()
	record.Status = store.ProcessCompleted
	record.EndedAt = &ended
	if err := reg.Complete(context.Background(), record); err != nil {
		t.Fatalf("complete: %v", err)
	}

	persisted, err := st.GetProcessRecord(context.Background(), "process_1_ddd")
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if persisted == nil || persisted.Status != store.ProcessCompleted {
		t.Fatalf("persisted = %+v", persisted)
	}
}

func TestSweepEvictsTerminalAfterTTLWithStoreFallback(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	record := runningRecord("process_1_eee")
	reg.Register(record)

	record.Status = store.ProcessCompleted
	ended := time.Now().UTC()
	record.EndedAt = &ended
	if err := reg.Complete(context.Background(), record); err != nil {
		t.Fatalf("complete: %v", err)
	}

	// Nothing is old enough yet.
	if evicted := reg.Sweep(); evicted != 0 {
		t.Fatalf("evicted %d, want 0", evicted)
	}

	reg.clock = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if evicted := reg.Sweep(); evicted != 1 {
		t.Fatalf("evicted %d, want 1", evicted)
	}
	if reg.Len() != 0 {
		t.Fatalf("len = %d", reg.Len())
	}

	// Evicted records remain reachable through the store.
	got, err := reg.Get(context.Background(), "process_1_eee")
	if err != nil {
		t.Fatalf("get after eviction: %v", err)
	}
	if got == nil || got.Status != store.ProcessCompleted {
		t.Fatalf("fallback record = %+v", got)
	}
}

func TestSweepKeepsRunningRecords(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Minute)
	reg.Register(runningRecord("process_1_fff"))

	reg.clock = func() time.Time { return time.Now().Add(time.Hour) }
	if evicted := reg.Sweep(); evicted != 0 {
		t.Fatalf("evicted %d running records", evicted)
	}
}

func TestActiveListsOnlyRunning(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Hour)
	reg.Register(runningRecord("process_1_run"))

	done := runningRecord("process_1_done")
	done.Status = store.ProcessCompleted
	ended := time.Now().UTC()
	done.EndedAt = &ended
	if err := reg.Complete(context.Background(), done); err != nil {
		t.Fatalf("complete: %v", err)
	}

	active := reg.Active()
	if len(active) != 1 || active[0].ProcessID != "process_1_run" {
		t.Fatalf("active = %+v", active)
	}
}

func TestGetUnknownReturnsNil(t *testing.T) {
	reg, _ := newTestRegistry(t, time.Hour)
	got, err := reg.Get(context.Background(), "process_0_missing")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("record = %+v", got)
	}
}

func TestStartAndCloseLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	reg := New(st, Options{TTL: time.Millisecond, SweepInterval: time.Millisecond}, nil)
	reg.Start()
	time.Sleep(5 * time.Millisecond)
	reg.Close()
}
