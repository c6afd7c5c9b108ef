package migrate

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "github.com/duckdb/duckdb-go/v2"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRun_CreatesHistoryTables(t *testing.T) {
	db := openTestDB(t)

	n, err := NewRunner(db).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 2 {
		t.Fatalf("applied = %d, want 2", n)
	}

	for _, table := range []string{"runs", "skipped_files", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT table_name FROM information_schema.tables WHERE table_name = ?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestRun_Idempotent(t *testing.T) {
	db := openTestDB(t)
	r := NewRunner(db)
	ctx := context.Background()

	if _, err := r.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	n, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if n != 0 {
		t.Fatalf("second Run applied %d, want 0", n)
	}

	cur, pending, err := r.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 2 || pending != 0 {
		t.Errorf("version=%d pending=%d, want version=2 pending=0", cur, pending)
	}
}

func TestStatus_BeforeRun(t *testing.T) {
	db := openTestDB(t)

	cur, pending, err := NewRunner(db).Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 0 || pending != 2 {
		t.Errorf("version=%d pending=%d, want version=0 pending=2", cur, pending)
	}
}

func TestRun_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	src := fstest.MapFS{
		"m/001_ok.sql":     {Data: []byte("CREATE TABLE ok_table (id INTEGER);")},
		"m/002_broken.sql": {Data: []byte("CREATE TABLE broken (;")},
	}
	r := NewRunner(db).WithSource(src, "m")

	n, err := r.Run(context.Background())
	if err == nil {
		t.Fatal("expected error from broken migration")
	}
	if n != 1 {
		t.Fatalf("applied = %d, want 1", n)
	}
	cur, pending, err := r.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if cur != 1 || pending != 1 {
		t.Errorf("version=%d pending=%d, want version=1 pending=1", cur, pending)
	}
}

func TestLoad_RejectsDuplicateVersions(t *testing.T) {
	db := openTestDB(t)
	src := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("SELECT 1;")},
		"m/001_b.sql": {Data: []byte("SELECT 1;")},
	}
	if _, err := NewRunner(db).WithSource(src, "m").Run(context.Background()); err == nil {
		t.Fatal("expected duplicate version error")
	}
}
