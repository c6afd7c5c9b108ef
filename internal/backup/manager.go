package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/snapvault/internal/archive"
	"github.com/tinytelemetry/snapvault/internal/model"
	"github.com/tinytelemetry/snapvault/internal/progress"
	"github.com/tinytelemetry/snapvault/internal/retention"
	"github.com/tinytelemetry/snapvault/internal/snapshot"
)

// Manager runs backups one at a time: copy the source into a temporary
// working copy, archive it into the target directory, prune old archives
// and remove the working copy after a grace delay.
type Manager struct {
	cfg     Config
	clock   clock.Clock
	logger  zerolog.Logger
	tracker *progress.Tracker

	running atomic.Bool

	mu    sync.RWMutex
	phase model.Phase
	last  *model.RunRecord

	cleanupMu sync.Mutex
	cleanups  map[string]pendingCleanup

	lifeMu  sync.Mutex
	stopped bool
	runWG   sync.WaitGroup

	done     chan struct{}
	loopWG   sync.WaitGroup
	stopOnce sync.Once
}

type pendingCleanup struct {
	timer  clock.Timer
	events model.EventSink
	target string
}

// NewManager validates cfg and fills in defaults.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Settings == nil {
		return nil, fmt.Errorf("backup: nil settings provider")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("backup: nil source resolver")
	}
	if strings.TrimSpace(cfg.TempDir) == "" {
		cfg.TempDir = os.TempDir()
	}
	if strings.TrimSpace(cfg.ArchiveTag) == "" {
		cfg.ArchiveTag = defaultArchiveTag
	}
	if cfg.StartDelay < 0 {
		cfg.StartDelay = model.DefaultStartDelay
	}
	if cfg.CleanupDelay < 0 {
		cfg.CleanupDelay = model.DefaultCleanupDelay
	}
	if cfg.Copier == nil {
		cfg.Copier = &snapshot.Copier{}
	}
	if cfg.Pruner == nil {
		cfg.Pruner = &retention.Pruner{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	return &Manager{
		cfg:      cfg,
		clock:    cfg.Clock,
		logger:   logger.With().Str("component", "backup").Logger(),
		tracker:  progress.NewTracker(),
		phase:    model.PhaseIdle,
		cleanups: make(map[string]pendingCleanup),
		done:     make(chan struct{}),
	}, nil
}

// Progress exposes the shared progress tracker.
func (m *Manager) Progress() *progress.Tracker { return m.tracker }

// Status returns a point-in-time view for UI and API readers.
func (m *Manager) Status() model.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := model.Status{
		InProgress: m.running.Load(),
		Progress:   m.tracker.Value(),
		Phase:      m.phase,
	}
	if m.last != nil {
		rec := *m.last
		st.LastRun = &rec
	}
	return st
}

// ListArchives returns the archives in the current target directory,
// newest first.
func (m *Manager) ListArchives() ([]model.ArchiveInfo, error) {
	st := m.cfg.Settings.Snapshot()
	if strings.TrimSpace(st.TargetPath) == "" {
		return nil, nil
	}
	return m.cfg.Pruner.List(st.TargetPath)
}

// Run executes one backup synchronously with the given settings snapshot.
// It fails fast with ErrBackupInProgress if another run is in flight and
// with ErrStopped once Stop has been called.
func (m *Manager) Run(st model.Settings, sink progress.Sink) (*model.Run, error) {
	if !m.running.CompareAndSwap(false, true) {
		return nil, ErrBackupInProgress
	}
	defer m.running.Store(false)

	m.lifeMu.Lock()
	if m.stopped {
		m.lifeMu.Unlock()
		return nil, ErrStopped
	}
	m.runWG.Add(1)
	m.lifeMu.Unlock()
	defer m.runWG.Done()

	return m.execute(model.TriggerManual, st, sink)
}

// Trigger starts a run in the background with a fresh settings snapshot.
// It returns false when a run is already in flight or the manager is stopped.
func (m *Manager) Trigger(kind model.TriggerKind) bool {
	if !m.running.CompareAndSwap(false, true) {
		m.logger.Info().Str("trigger", string(kind)).Msg("backup already running, trigger ignored")
		return false
	}

	m.lifeMu.Lock()
	if m.stopped {
		m.lifeMu.Unlock()
		m.running.Store(false)
		return false
	}
	m.runWG.Add(1)
	m.lifeMu.Unlock()

	st := m.cfg.Settings.Snapshot()
	go func() {
		defer m.runWG.Done()
		defer m.running.Store(false)
		if _, err := m.execute(kind, st, nil); err != nil {
			m.logger.Error().Err(err).Str("trigger", string(kind)).Msg("backup failed")
		}
	}()
	return true
}

// OnStarted handles the host "application started" signal. When backups are
// enabled it waits StartDelay and triggers a run. It blocks; ctx or Stop
// abort the wait.
func (m *Manager) OnStarted(ctx context.Context) bool {
	if !m.cfg.Settings.Snapshot().Enabled {
		return false
	}
	select {
	case <-m.clock.After(m.cfg.StartDelay):
	case <-ctx.Done():
		return false
	case <-m.done:
		return false
	}
	return m.Trigger(model.TriggerStartup)
}

// Start launches the periodic trigger. A non-positive interval disables it.
func (m *Manager) Start(interval time.Duration) {
	if interval <= 0 {
		return
	}
	m.loopWG.Add(1)
	go m.loop(interval)
}

func (m *Manager) loop(interval time.Duration) {
	defer m.loopWG.Done()
	for {
		select {
		case <-m.clock.After(interval):
			if m.cfg.Settings.Snapshot().Enabled {
				m.Trigger(model.TriggerInterval)
			}
		case <-m.done:
			return
		}
	}
}

// Stop terminates the periodic loop, waits for an in-flight run and removes
// working copies whose cleanup is still pending.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
		m.loopWG.Wait()

		m.lifeMu.Lock()
		m.stopped = true
		m.lifeMu.Unlock()
		m.runWG.Wait()

		m.flushCleanups()
	})
}

func (m *Manager) setPhase(p model.Phase, run *model.Run) {
	run.Phase = p
	m.mu.Lock()
	m.phase = p
	m.mu.Unlock()
}

func (m *Manager) eventsFor(st model.Settings) model.EventSink {
	if st.LogEnabled && m.cfg.Events != nil {
		return m.cfg.Events
	}
	return model.NopEvents{}
}

func (m *Manager) execute(kind model.TriggerKind, st model.Settings, sink progress.Sink) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Trigger:   kind,
		StartedAt: m.clock.Now(),
	}
	events := m.eventsFor(st)
	target := st.TargetPath

	m.tracker.Reset()
	m.setPhase(model.PhaseIdle, run)
	events.Event("RUN_START", fmt.Sprintf("id=%s trigger=%s", run.ID, kind), target)
	m.logger.Info().Str("run", run.ID).Str("trigger", string(kind)).Msg("backup started")

	sink = progress.Multi(m.tracker, sink)
	sink.Report(0)
	err := m.steps(run, st, sink, events)
	run.Elapsed = m.clock.Now().Sub(run.StartedAt)
	elapsed := fmt.Sprintf("%.2fs", run.Elapsed.Seconds())

	if err != nil {
		run.Message = err.Error()
		events.Failure(err, target)
		events.Event("RUN_FAILURE", fmt.Sprintf("elapsed=%s error=%s", elapsed, err), target)
	} else {
		run.Success = true
		events.Event("RUN_SUCCESS", fmt.Sprintf("elapsed=%s archive=%s", elapsed, filepath.Base(run.Archive)), target)
		m.logger.Info().
			Str("run", run.ID).
			Str("archive", run.Archive).
			Int("skipped", len(run.Skipped)).
			Int("pruned", run.Pruned).
			Dur("elapsed", run.Elapsed).
			Msg("backup finished")
	}

	if run.WorkingCopy != "" {
		m.scheduleCleanup(run.WorkingCopy, events, target)
		m.setPhase(model.PhaseCleanupScheduled, run)
	}
	m.setPhase(model.PhaseDone, run)

	rec := run.Record()
	if s, ok := events.(model.RunSummarizer); ok {
		s.Summarize(rec, target)
	}
	m.finish(rec)
	return run, err
}

func (m *Manager) steps(run *model.Run, st model.Settings, sink progress.Sink, events model.EventSink) error {
	target := st.TargetPath

	src, err := m.cfg.Source.Resolve()
	if err != nil {
		return errors.Annotatef(ErrSourceUnresolved, "resolve source: %v", err)
	}
	run.Source = src
	m.setPhase(model.PhaseSourceResolved, run)
	events.Event("SOURCE", src, target)

	wc, err := m.createWorkingCopy(src)
	if err != nil {
		return errors.Annotate(err, "create working copy")
	}
	run.WorkingCopy = wc
	m.setPhase(model.PhaseWorkingCopyCreated, run)
	events.Event("WORKING_COPY", wc, target)

	res, err := m.cfg.Copier.Copy(src, wc, sink)
	if err != nil {
		return errors.Annotate(err, "copy source tree")
	}
	run.FilesTotal = res.Total
	run.FilesCopied = res.Copied
	run.Skipped = res.Skipped
	run.SkippedDirs = res.SkippedDirs
	m.setPhase(model.PhaseCopied, run)
	events.Event("COPY_DONE", fmt.Sprintf("total=%d copied=%d skipped=%d skipped_dirs=%d",
		res.Total, res.Copied, len(res.Skipped), len(res.SkippedDirs)), target)
	for _, p := range res.Skipped {
		m.logger.Debug().Str("run", run.ID).Str("path", p).Msg("skipped file")
	}

	if strings.TrimSpace(target) == "" {
		return errors.New("target path is empty")
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return errors.Annotatef(err, "create target %s", target)
	}
	events.Event("TARGET", target, target)

	dest := archive.UniquePath(target, m.cfg.ArchiveTag, m.clock.Now())
	events.Event("ARCHIVE_PREPARED", filepath.Base(dest), target)
	info, err := archive.Create(wc, dest)
	if err != nil {
		return errors.Annotate(err, "create archive")
	}
	run.Archive = info.Path
	run.ArchiveSize = info.Size
	m.setPhase(model.PhaseArchived, run)
	events.Event("ARCHIVE_DONE", fmt.Sprintf("%s size=%s entries=%d",
		filepath.Base(info.Path), humanize.Bytes(uint64(info.Size)), info.Entries), target)

	pr, err := m.cfg.Pruner.Prune(target, st.RetentionLimit)
	if err != nil {
		m.logger.Warn().Err(err).Str("target", target).Msg("prune failed")
		events.Event("PRUNE", "error="+err.Error(), target)
	} else {
		run.Pruned = len(pr.Deleted)
		events.Event("PRUNE", fmt.Sprintf("deleted=%d failed=%d kept=%d",
			len(pr.Deleted), len(pr.Failed), pr.Kept), target)
		for _, p := range pr.Failed {
			m.logger.Warn().Str("path", p).Msg("could not delete old archive")
		}
	}
	m.setPhase(model.PhasePruned, run)
	return nil
}

// createWorkingCopy makes <TempDir>/<source base>_Backup_<uuid>.
func (m *Manager) createWorkingCopy(src string) (string, error) {
	tmp, err := filepath.Abs(m.cfg.TempDir)
	if err != nil {
		return "", err
	}
	if within(tmp, src) {
		return "", fmt.Errorf("temp dir %s is inside source %s", tmp, src)
	}
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return "", err
	}
	wc := filepath.Join(tmp, filepath.Base(src)+"_Backup_"+uuid.NewString())
	if err := os.Mkdir(wc, 0700); err != nil {
		return "", err
	}
	return wc, nil
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func (m *Manager) finish(rec model.RunRecord) {
	m.mu.Lock()
	m.last = &rec
	m.mu.Unlock()

	for _, r := range m.cfg.Recorders {
		if err := r.RecordRun(rec); err != nil {
			m.logger.Warn().Err(err).Str("run", rec.ID).Msg("record run failed")
		}
	}
}

func (m *Manager) scheduleCleanup(path string, events model.EventSink, target string) {
	m.cleanupMu.Lock()
	m.cleanups[path] = pendingCleanup{events: events, target: target}
	m.cleanupMu.Unlock()

	timer := m.clock.AfterFunc(m.cfg.CleanupDelay, func() {
		m.cleanup(path)
	})

	m.cleanupMu.Lock()
	if pc, ok := m.cleanups[path]; ok {
		pc.timer = timer
		m.cleanups[path] = pc
	}
	m.cleanupMu.Unlock()
}

func (m *Manager) cleanup(path string) {
	m.cleanupMu.Lock()
	pc, ok := m.cleanups[path]
	delete(m.cleanups, path)
	m.cleanupMu.Unlock()
	if !ok {
		return
	}

	if err := os.RemoveAll(path); err != nil {
		m.logger.Warn().Err(err).Str("path", path).Msg("working copy cleanup failed")
		pc.events.Event("CLEANUP", "failed "+path+": "+err.Error(), pc.target)
		return
	}
	pc.events.Event("CLEANUP", "removed "+path, pc.target)
}

func (m *Manager) flushCleanups() {
	m.cleanupMu.Lock()
	paths := make([]string, 0, len(m.cleanups))
	for p, pc := range m.cleanups {
		if pc.timer != nil {
			pc.timer.Stop()
		}
		paths = append(paths, p)
	}
	m.cleanupMu.Unlock()

	for _, p := range paths {
		m.cleanup(p)
	}
}

// PendingCleanups reports how many working copies await deletion.
func (m *Manager) PendingCleanups() int {
	m.cleanupMu.Lock()
	defer m.cleanupMu.Unlock()
	return len(m.cleanups)
}
