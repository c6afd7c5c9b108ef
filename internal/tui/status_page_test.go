package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tinytelemetry/snapvault/internal/model"
)

type fakeBackend struct {
	status   model.Status
	settings model.Settings
	runs     []model.RunRecord
	archives []model.ArchiveInfo
	started  bool
	err      error

	triggers int
	patches  []model.SettingsPatch
}

func (f *fakeBackend) Status() (model.Status, error) { return f.status, f.err }
func (f *fakeBackend) TriggerBackup() (bool, error) {
	f.triggers++
	return f.started, f.err
}
func (f *fakeBackend) RecentRuns(int) ([]model.RunRecord, error) { return f.runs, f.err }
func (f *fakeBackend) ListArchives() ([]model.ArchiveInfo, error) { return f.archives, f.err }
func (f *fakeBackend) GetSettings() (model.Settings, error) { return f.settings, f.err }
func (f *fakeBackend) UpdateSettings(p model.SettingsPatch) (model.Settings, error) {
	f.patches = append(f.patches, p)
	p.Apply(&f.settings)
	return f.settings, f.err
}

func keyPress(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func newLoadedPage(t *testing.T, backend *fakeBackend) *StatusPage {
	t.Helper()
	p := NewStatusPage(backend, time.Second)
	p.Update(p.fetch()())
	if !p.loaded {
		t.Fatalf("page not loaded after snapshot: %v", p.lastErr)
	}
	return p
}

func sampleBackend() *fakeBackend {
	now := time.Now()
	return &fakeBackend{
		status: model.Status{
			Phase: model.PhaseDone,
			LastRun: &model.RunRecord{
				ID: "r2", Success: true, Archive: "/b/Backup_App_20250101_120000.zip",
				ArchiveSize: 3 << 20, Elapsed: 1500 * time.Millisecond, StartedAt: now.Add(-time.Minute),
				Skipped: []string{"/src/locked.db"},
			},
		},
		settings: model.Settings{Enabled: true, TargetPath: "/b", RetentionLimit: 3},
		runs: []model.RunRecord{
			{ID: "r2", Success: true, Elapsed: 1500 * time.Millisecond},
			{ID: "r1", Success: false, Elapsed: 300 * time.Millisecond, Message: "disk full"},
		},
		archives: []model.ArchiveInfo{
			{Name: "Backup_App_20250101_120000.zip", Size: 3 << 20, Created: now.Add(-time.Minute)},
		},
		started: true,
	}
}

func TestStatusPage_ViewShowsSnapshot(t *testing.T) {
	t.Parallel()
	p := newLoadedPage(t, sampleBackend())

	view := p.View(100, 40)
	for _, want := range []string{
		"Backup_App_20250101_120000.zip",
		"3.1 MB",
		"1 skipped",
		"Archives (1)",
		"Run durations",
		"Keep: 3",
		"/b",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestStatusPage_LoadingAndError(t *testing.T) {
	t.Parallel()
	backend := &fakeBackend{err: errors.New("connection refused")}
	p := NewStatusPage(backend, time.Second)

	if view := p.View(60, 10); !strings.Contains(view, "Connecting") {
		t.Fatalf("initial view = %q, want loading placeholder", view)
	}
	p.Update(p.fetch()())
	if view := p.View(80, 10); !strings.Contains(view, "connection refused") {
		t.Fatalf("error view = %q", view)
	}
}

func TestStatusPage_BackupKey(t *testing.T) {
	t.Parallel()
	backend := sampleBackend()
	p := newLoadedPage(t, backend)

	cmd, _ := p.Update(keyPress('b'))
	if cmd == nil {
		t.Fatal("expected trigger command")
	}
	msg := cmd()
	if backend.triggers != 1 {
		t.Fatalf("triggers = %d, want 1", backend.triggers)
	}
	p.Update(msg)
	if !p.status.InProgress || p.notice != "backup started" {
		t.Fatalf("status = %+v, notice = %q", p.status, p.notice)
	}

	backend.started = false
	cmd, _ = p.Update(keyPress('b'))
	p.Update(cmd())
	if p.notice != "a backup is already running" {
		t.Fatalf("notice = %q", p.notice)
	}
}

func TestStatusPage_SettingsKeys(t *testing.T) {
	t.Parallel()
	backend := sampleBackend()
	p := newLoadedPage(t, backend)

	press := func(r rune) {
		t.Helper()
		cmd, _ := p.Update(keyPress(r))
		if cmd == nil {
			t.Fatalf("key %q produced no command", r)
		}
		p.Update(cmd())
	}

	press('+')
	if p.settings.RetentionLimit != 4 {
		t.Fatalf("limit after + = %d, want 4", p.settings.RetentionLimit)
	}
	press('e')
	if p.settings.Enabled {
		t.Fatal("enabled should be toggled off")
	}
	press('l')
	if !p.settings.LogEnabled {
		t.Fatal("logging should be toggled on")
	}
	if len(backend.patches) != 3 {
		t.Fatalf("patches = %d, want 3", len(backend.patches))
	}
}

func TestStatusPage_LimitNeverBelowOne(t *testing.T) {
	t.Parallel()
	backend := sampleBackend()
	backend.settings.RetentionLimit = 1
	p := newLoadedPage(t, backend)

	cmd, _ := p.Update(keyPress('-'))
	if cmd != nil {
		t.Fatal("expected no update at limit 1")
	}
	if len(backend.patches) != 0 {
		t.Fatalf("patches = %v, want none", backend.patches)
	}
}

func TestStatusPage_QuitKey(t *testing.T) {
	t.Parallel()
	p := newLoadedPage(t, sampleBackend())

	_, nav := p.Update(keyPress('q'))
	if nav == nil || !nav.Quit {
		t.Fatalf("nav = %+v, want quit", nav)
	}
}

func TestStatusPage_TickSkipsWhileFetching(t *testing.T) {
	t.Parallel()
	p := NewStatusPage(&fakeBackend{}, time.Second)
	p.fetching = true

	cmd, _ := p.Update(tickMsg{})
	if cmd == nil {
		t.Fatal("tick should reschedule")
	}
	if !p.fetching {
		t.Fatal("fetching flag should be untouched")
	}
}

func TestRenderDurations(t *testing.T) {
	t.Parallel()

	if out := renderDurations(nil, 40, 6); !strings.Contains(out, "No runs recorded") {
		t.Fatalf("empty render = %q", out)
	}
	out := renderDurations(sampleBackend().runs, 40, 6)
	if !strings.Contains(out, "last 2 runs, longest 1.5s") {
		t.Fatalf("render = %q", out)
	}
}

func TestApp_RoutesAndQuits(t *testing.T) {
	t.Parallel()
	p := newLoadedPage(t, sampleBackend())
	app := NewApp(p)

	app.Update(tea.WindowSizeMsg{Width: 90, Height: 30})
	if app.width != 90 || app.height != 30 {
		t.Fatalf("size = %dx%d", app.width, app.height)
	}
	if view := app.View(); !strings.Contains(view, "snapvault") {
		t.Fatalf("view = %q", view)
	}
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("ctrl+c should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("ctrl+c should produce QuitMsg")
	}
}
