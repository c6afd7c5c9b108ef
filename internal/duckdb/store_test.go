package duckdb

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/tinytelemetry/snapvault/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRun(id string, started time.Time, success bool, skipped ...string) model.RunRecord {
	return model.RunRecord{
		ID:          id,
		Trigger:     model.TriggerManual,
		Source:      "/opt/app",
		Archive:     "/backups/Backup_App_" + id + ".zip",
		ArchiveSize: 4096,
		StartedAt:   started,
		Elapsed:     1500 * time.Millisecond,
		FilesTotal:  10,
		FilesCopied: 10 - len(skipped),
		Skipped:     skipped,
		Pruned:      1,
		Success:     success,
	}
}

func TestRecordRun_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if err := store.RecordRun(testRun("r1", base, true)); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	failed := testRun("r2", base.Add(time.Hour), false, "/opt/app/a.db", "/opt/app/b.lock")
	failed.Message = "create archive: disk full"
	if err := store.RecordRun(failed); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("len(runs) = %d, want 2", len(runs))
	}
	got := runs[0]
	if got.ID != "r2" || got.Success || got.Message != failed.Message {
		t.Fatalf("newest run = %+v", got)
	}
	if !got.StartedAt.Equal(failed.StartedAt) {
		t.Fatalf("StartedAt = %v, want %v", got.StartedAt, failed.StartedAt)
	}
	if got.Elapsed != 1500*time.Millisecond || got.Trigger != model.TriggerManual {
		t.Fatalf("elapsed/trigger = %v/%v", got.Elapsed, got.Trigger)
	}
	if len(got.Skipped) != 2 || got.Skipped[0] != "/opt/app/a.db" || got.Skipped[1] != "/opt/app/b.lock" {
		t.Fatalf("Skipped = %v", got.Skipped)
	}
	if runs[1].ID != "r1" || len(runs[1].Skipped) != 0 {
		t.Fatalf("older run = %+v", runs[1])
	}
}

func TestRecentRuns_Limit(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		if err := store.RecordRun(testRun(id, base.Add(time.Duration(i)*time.Minute), true, "/x/"+id)); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	runs, err := store.RecentRuns(2)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "d" || runs[1].ID != "c" {
		t.Fatalf("runs = %+v", runs)
	}
	if len(runs[0].Skipped) != 1 || runs[0].Skipped[0] != "/x/d" {
		t.Fatalf("skipped = %v", runs[0].Skipped)
	}
}

func TestRecordRun_DuplicateIDFails(t *testing.T) {
	store := newTestStore(t)
	rec := testRun("dup", time.Now(), true, "/a")
	if err := store.RecordRun(rec); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if err := store.RecordRun(rec); err == nil {
		t.Fatal("expected primary key violation")
	}
	n, err := store.RunCount()
	if err != nil {
		t.Fatalf("RunCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("RunCount = %d, want 1", n)
	}
}

func TestDeleteBefore(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old1", "old2", "new"} {
		if err := store.RecordRun(testRun(id, base.AddDate(0, 0, i*10), true, "/s/"+id)); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}

	n, err := store.DeleteBefore(base.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}

	var orphans int
	if err := store.db.QueryRow("SELECT COUNT(*) FROM skipped_files WHERE run_id <> 'new'").Scan(&orphans); err != nil {
		t.Fatal(err)
	}
	if orphans != 0 {
		t.Fatalf("orphaned skipped_files rows = %d", orphans)
	}
}

func TestNewStore_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.duckdb")
	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.RecordRun(testRun("disk", time.Now(), true)); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	store.Close()

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Path() != path {
		t.Fatalf("Path = %s, want %s", reopened.Path(), path)
	}
	n, err := reopened.RunCount()
	if err != nil || n != 1 {
		t.Fatalf("RunCount = %d, %v; want 1", n, err)
	}
}

func TestRetentionCleaner_DeletesExpired(t *testing.T) {
	store := newTestStore(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	if err := store.RecordRun(testRun("ancient", now.AddDate(0, 0, -40), true)); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordRun(testRun("recent", now.AddDate(0, 0, -1), true)); err != nil {
		t.Fatal(err)
	}

	clk := testclock.NewClock(now)
	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 30, Clock: clk})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}
	defer cleaner.Stop()

	runs, err := store.RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "recent" {
		t.Fatalf("runs after startup cleanup = %+v", runs)
	}
}

func TestRetentionCleaner_DisabledAndIdempotentStop(t *testing.T) {
	store := newTestStore(t)
	if c := NewRetentionCleaner(store, RetentionConfig{}); c != nil {
		t.Fatal("expected nil cleaner when retention is 0")
	}

	cleaner := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 1})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}
	cleaner.Stop()
	cleaner.Stop()
}
