package socketrpc_test

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/tinytelemetry/snapvault/internal/model"
	"github.com/tinytelemetry/snapvault/internal/settings"
	"github.com/tinytelemetry/snapvault/internal/socketrpc"
)

// mockEngine is a minimal backend for roundtrip testing.
type mockEngine struct {
	mu       sync.Mutex
	busy     bool
	triggers int
}

func (m *mockEngine) Trigger(kind model.TriggerKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return false
	}
	m.busy = true
	m.triggers++
	return true
}

func (m *mockEngine) Status() model.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return model.Status{InProgress: m.busy, Progress: 50, Phase: model.PhaseCopied}
}

func (m *mockEngine) ListArchives() ([]model.ArchiveInfo, error) {
	return []model.ArchiveInfo{{
		Name:    "Backup_App_20250101_120000.zip",
		Path:    "/backups/Backup_App_20250101_120000.zip",
		Size:    2048,
		Created: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}}, nil
}

func (m *mockEngine) RecentRuns(limit int) ([]model.RunRecord, error) {
	out := []model.RunRecord{
		{ID: "b", Success: false, Message: "archive failed", Elapsed: 2 * time.Second},
		{ID: "a", Success: true, Skipped: []string{"/src/locked.db"}},
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func startTestServer(t *testing.T) (string, *socketrpc.Server, *mockEngine) {
	t.Helper()
	st, err := settings.Open(filepath.Join(t.TempDir(), "settings.yml"))
	if err != nil {
		t.Fatalf("settings.Open: %v", err)
	}
	engine := &mockEngine{}
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	srv := socketrpc.NewServer(sockPath, socketrpc.Deps{
		Backups:  engine,
		Archives: engine,
		Runs:     engine,
		Settings: st,
	})
	if err := srv.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	return sockPath, srv, engine
}

func TestRoundtrip(t *testing.T) {
	sockPath, srv, engine := startTestServer(t)
	defer srv.Stop()

	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	t.Run("Status", func(t *testing.T) {
		st, err := client.Status()
		if err != nil {
			t.Fatal(err)
		}
		if st.Progress != 50 || st.Phase != model.PhaseCopied {
			t.Fatalf("unexpected status: %+v", st)
		}
	})

	t.Run("TriggerBackup", func(t *testing.T) {
		started, err := client.TriggerBackup()
		if err != nil {
			t.Fatal(err)
		}
		if !started {
			t.Fatal("first trigger should start a run")
		}
		started, err = client.TriggerBackup()
		if err != nil {
			t.Fatal(err)
		}
		if started {
			t.Fatal("second trigger should be rejected while busy")
		}
		if engine.triggers != 1 {
			t.Fatalf("triggers = %d, want 1", engine.triggers)
		}
	})

	t.Run("RecentRuns", func(t *testing.T) {
		runs, err := client.RecentRuns(1)
		if err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].ID != "b" || runs[0].Elapsed != 2*time.Second {
			t.Fatalf("unexpected runs: %+v", runs)
		}
	})

	t.Run("ListArchives", func(t *testing.T) {
		archives, err := client.ListArchives()
		if err != nil {
			t.Fatal(err)
		}
		if len(archives) != 1 || archives[0].Size != 2048 {
			t.Fatalf("unexpected archives: %+v", archives)
		}
	})

	t.Run("Settings", func(t *testing.T) {
		limit := 4
		enabled := true
		next, err := client.UpdateSettings(model.SettingsPatch{RetentionLimit: &limit, Enabled: &enabled})
		if err != nil {
			t.Fatal(err)
		}
		if next.RetentionLimit != 4 || !next.Enabled {
			t.Fatalf("unexpected settings: %+v", next)
		}
		got, err := client.GetSettings()
		if err != nil {
			t.Fatal(err)
		}
		if got != next {
			t.Fatalf("GetSettings = %+v, want %+v", got, next)
		}
	})

	t.Run("InvalidSettings", func(t *testing.T) {
		empty := ""
		_, err := client.UpdateSettings(model.SettingsPatch{TargetPath: &empty})
		var rpcErr *socketrpc.RPCError
		if !errors.As(err, &rpcErr) || rpcErr.Code != -32602 {
			t.Fatalf("err = %v, want -32602 RPCError", err)
		}
	})
}

func TestDialFailure(t *testing.T) {
	_, err := socketrpc.Dial(filepath.Join(t.TempDir(), "nonexistent.sock"))
	if err == nil {
		t.Fatal("expected error dialing nonexistent socket")
	}
}

func TestStartRejectsLiveSocket(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	defer srv.Stop()

	second := socketrpc.NewServer(sockPath, socketrpc.Deps{})
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("expected second server to refuse a live socket")
	}
}

func TestServerStopCleansSocket(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	srv.Stop()

	// Socket file should be removed.
	if _, err := socketrpc.Dial(sockPath); err == nil {
		t.Fatal("expected dial to fail after server stop")
	}
}

func TestStopIdempotent(t *testing.T) {
	_, srv, _ := startTestServer(t)
	srv.Stop()
	srv.Stop()
}

func TestStopClosesConns(t *testing.T) {
	sockPath, srv, _ := startTestServer(t)
	client, err := socketrpc.Dial(sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	srv.Stop()

	done := make(chan error, 1)
	go func() {
		_, callErr := client.Status()
		done <- callErr
	}()

	select {
	case callErr := <-done:
		if callErr == nil {
			t.Fatal("expected client call to fail after server stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client call hung after server stop")
	}
}
