package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "journal.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSQLite_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.db")

	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatalf("OpenSQLite() = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestOpenSQLite_Memory(t *testing.T) {
	s, err := OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("OpenSQLite() = %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	if err := s.RecordCall(ctx, CallRecord{SessionID: "s", Method: "ping", Outcome: "ok"}); err != nil {
		t.Fatalf("RecordCall() = %v", err)
	}
	calls, err := s.RecentCalls(ctx, 10)
	if err != nil {
		t.Fatalf("RecentCalls() = %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("len(calls) = %d, want 1", len(calls))
	}
}

func TestRecordCall_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)

	rec := CallRecord{
		SessionID: "session-1",
		Method:    "tools/call",
		Tool:      "compile_rom",
		Params:    `{"platform":"nes"}`,
		Outcome:   "timeout",
		Error:     "tools/call after 30s: timeout",
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
	}
	if err := s.RecordCall(ctx, rec); err != nil {
		t.Fatalf("RecordCall() = %v", err)
	}

	calls, err := s.RecentCalls(ctx, 0)
	if err != nil {
		t.Fatalf("RecentCalls() = %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("len(calls) = %d, want 1", len(calls))
	}

	got := calls[0]
	if got.ID == "" {
		t.Error("ID was not generated")
	}
	if got.Tool != "compile_rom" || got.Outcome != "timeout" || got.Params != rec.Params {
		t.Errorf("got %+v", got)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
	}
	if got.Duration != 1500*time.Millisecond {
		t.Errorf("Duration = %v, want 1.5s", got.Duration)
	}
}

func TestRecentCalls_NewestFirstAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c", "d"} {
		if err := s.RecordCall(ctx, CallRecord{SessionID: "s", Method: m, Outcome: "ok"}); err != nil {
			t.Fatal(err)
		}
	}

	calls, err := s.RecentCalls(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 2 {
		t.Fatalf("len(calls) = %d, want 2", len(calls))
	}
	if calls[0].Method != "d" || calls[1].Method != "c" {
		t.Errorf("got %s, %s; want d, c", calls[0].Method, calls[1].Method)
	}
}

func TestRecordCall_DuplicateID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := CallRecord{ID: "fixed", SessionID: "s", Method: "ping", Outcome: "ok"}
	if err := s.RecordCall(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordCall(ctx, rec); err == nil {
		t.Error("expected error for duplicate id")
	}
}

func TestRecordTransition_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	steps := []TransitionRecord{
		{SessionID: "s", From: "stopped", To: "starting"},
		{SessionID: "s", From: "starting", To: "running", InstanceID: "inst-1", PID: 4242},
		{SessionID: "s", From: "running", To: "crashed", InstanceID: "inst-1", PID: 4242, Restarts: 1, Error: "exit status 3"},
	}
	for _, tr := range steps {
		if err := s.RecordTransition(ctx, tr); err != nil {
			t.Fatalf("RecordTransition() = %v", err)
		}
	}

	got, err := s.RecentTransitions(ctx, 10)
	if err != nil {
		t.Fatalf("RecentTransitions() = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].To != "crashed" || got[0].Error != "exit status 3" || got[0].PID != 4242 || got[0].Restarts != 1 {
		t.Errorf("newest = %+v", got[0])
	}
	if got[2].From != "stopped" {
		t.Errorf("oldest = %+v", got[2])
	}
	if got[0].At.IsZero() {
		t.Error("At was not filled")
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := OpenSQLite(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.RecordCall(ctx, CallRecord{SessionID: "first", Method: "ping", Outcome: "ok"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = OpenSQLite(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	calls, err := s.RecentCalls(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].SessionID != "first" {
		t.Errorf("calls = %+v", calls)
	}
}
