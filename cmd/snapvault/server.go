package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/snapvault/internal/backup"
	"github.com/tinytelemetry/snapvault/internal/duckdb"
	"github.com/tinytelemetry/snapvault/internal/httpserver"
	"github.com/tinytelemetry/snapvault/internal/logging"
	"github.com/tinytelemetry/snapvault/internal/metrics"
	"github.com/tinytelemetry/snapvault/internal/model"
	"github.com/tinytelemetry/snapvault/internal/oplog"
	"github.com/tinytelemetry/snapvault/internal/progress"
	"github.com/tinytelemetry/snapvault/internal/settings"
	"github.com/tinytelemetry/snapvault/internal/socketrpc"
)

// engine bundles everything a backup run needs, shared by the daemon and
// --once mode.
type engine struct {
	logger   zerolog.Logger
	settings *settings.Store
	store    *duckdb.Store
	history  *duckdb.RetentionCleaner
	ops      *oplog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	manager  *backup.Manager
}

func newEngine(cfg appConfig, logger zerolog.Logger) (*engine, error) {
	e := &engine{logger: logger}

	st, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	e.settings = st

	e.store, err = duckdb.NewStore(cfg.DBPath, cfg.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}

	historyLogger := logging.Component(logger, "history")
	e.history = duckdb.NewRetentionCleaner(e.store, duckdb.RetentionConfig{
		RetentionDays: cfg.HistoryRetention,
		Logger:        &historyLogger,
	})

	e.registry = prometheus.NewRegistry()
	e.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// The status gauges read the manager lazily, on scrape.
	e.metrics = metrics.NewRecorder(e.registry, func() model.Status { return e.manager.Status() })

	e.ops = oplog.New()

	var source backup.SourceResolver = backup.ExecutableDir{Parents: cfg.SourceParents}
	if cfg.SourceDir != "" {
		source = backup.FixedDir(cfg.SourceDir)
	}

	e.manager, err = backup.NewManager(backup.Config{
		Settings:     e.settings,
		Source:       source,
		TempDir:      cfg.TempDir,
		ArchiveTag:   cfg.ArchiveTag,
		StartDelay:   cfg.StartDelay,
		CleanupDelay: cfg.CleanupDelay,
		Events:       e.ops,
		Recorders:    []model.RunRecorder{e.store, e.metrics},
		Logger:       &logger,
	})
	if err != nil {
		e.close()
		return nil, fmt.Errorf("failed to initialize backups: %w", err)
	}
	return e, nil
}

// close stops the manager first so its last run is recorded before the
// store goes away.
func (e *engine) close() {
	if e.manager != nil {
		e.manager.Stop()
	}
	if e.history != nil {
		e.history.Stop()
	}
	if e.ops != nil {
		if err := e.ops.Close(); err != nil {
			e.logger.Warn().Err(err).Msg("closing operation logs")
		}
	}
	if e.store != nil {
		e.store.Close()
	}
}

// runOnce performs a single synchronous backup and reports its outcome.
func runOnce(cfg appConfig) error {
	logger := logging.New(logging.Options{Level: cfg.LogLevel, Service: "snapvault"})

	e, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.close()

	sink := progress.Func(func(pct float64) {
		fmt.Fprintf(os.Stderr, "\rbacking up %5.1f%%", pct)
	})
	run, err := e.manager.Run(e.settings.Snapshot(), sink)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s, %d files, %d skipped, %d pruned) in %.2fs\n",
		run.Archive, humanize.Bytes(uint64(run.ArchiveSize)), run.FilesCopied,
		len(run.Skipped), run.Pruned, run.Elapsed.Seconds())
	for _, p := range run.Skipped {
		fmt.Printf("  skipped %s\n", p)
	}
	return nil
}

// runServer runs the backup daemon: startup trigger, optional periodic
// runs, HTTP API and socket RPC.
func runServer(cfg appConfig) error {
	logger, cleanupLogger := configureRuntimeLogger(cfg)
	defer cleanupLogger()

	e, err := newEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer e.close()

	e.settings.OnChange(func(st model.Settings) {
		logger.Info().
			Bool("enabled", st.Enabled).
			Str("target", st.TargetPath).
			Int("retention_limit", st.RetentionLimit).
			Bool("log_enabled", st.LogEnabled).
			Msg("settings changed")
	})
	e.settings.Watch()

	if cfg.APIEnabled {
		apiServer := httpserver.NewServer(cfg.APIAddr, httpserver.Deps{
			Backups:  e.manager,
			Archives: e.manager,
			Runs:     e.store,
			Settings: e.settings,
			Gatherer: e.registry,
			Metrics:  e.metrics,
			Logger:   &logger,
		})
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	sockServer := socketrpc.NewServer(cfg.SocketPath, socketrpc.Deps{
		Backups:  e.manager,
		Archives: e.manager,
		Runs:     e.store,
		Settings: e.settings,
		Logger:   &logger,
	})
	if err := sockServer.Start(); err != nil {
		logger.Warn().Err(err).Msg("failed to start socket server")
	} else {
		defer sockServer.Stop()
	}

	// Set up context and signal handling before errgroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		// Shutdown deadline starts now, not at boot.
		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg, e.settings.Snapshot())

	e.manager.Start(cfg.Interval)

	g, gctx := errgroup.WithContext(ctx)

	// Host started: back up once after the settle delay when enabled.
	g.Go(func() error {
		if e.manager.OnStarted(gctx) {
			logger.Info().Dur("delay", cfg.StartDelay).Msg("startup backup triggered")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("errgroup exited with error")
	}
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

// configureRuntimeLogger sends process logs to a rotated file so the banner
// stays readable; it falls back to stderr.
func configureRuntimeLogger(cfg appConfig) (zerolog.Logger, func()) {
	stderr := func() (zerolog.Logger, func()) {
		return logging.New(logging.Options{Level: cfg.LogLevel, Service: "snapvault"}), func() {}
	}

	path := cfg.LogFile
	if path == "" {
		p, err := logging.DefaultRuntimeLogPath("snapvault")
		if err != nil {
			return stderr()
		}
		path = p
	}

	f, err := logging.RotatingFile(path)
	if err != nil {
		return stderr()
	}

	logger := logging.New(logging.Options{Level: cfg.LogLevel, Service: "snapvault", Writer: io.Writer(f)})
	return logger, func() {
		_ = f.Close()
	}
}

func printStartupBanner(cfg appConfig, st model.Settings) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╔╗╔╔═╗╔═╗╦  ╦╔═╗╦ ╦╦ ╔╦╗
    ╚═╗║║║╠═╣╠═╝╚╗╔╝╠═╣║ ║║  ║
    ╚═╝╝╚╝╩ ╩╩   ╚╝ ╩ ╩╚═╝╩═╝╩`)

	row := func(on bool, label, value string) string {
		mark := dot
		if on {
			mark = check
		}
		return fmt.Sprintf("    %s  %-14s %s", mark, label, value)
	}

	separator := dim.Render("    ─────────────────────────────────")
	lines := []string{"", logo, "    " + dim.Render("v"+version), "", separator, ""}

	lines = append(lines, bold.Render("    Backup"), "")
	source := cfg.SourceDir
	if source == "" {
		source = fmt.Sprintf("executable dir (+%d up)", cfg.SourceParents)
	}
	lines = append(lines,
		row(true, "Source", dim.Render(shortenPath(source))),
		row(true, "Target", dim.Render(shortenPath(st.TargetPath))),
		row(true, "Keep", dim.Render(fmt.Sprintf("%d archives", st.RetentionLimit))),
	)
	if st.Enabled {
		lines = append(lines, row(true, "On start", cyan.Render("after "+cfg.StartDelay.String())))
	} else {
		lines = append(lines, row(false, "On start", dim.Render("disabled")))
	}
	if cfg.Interval > 0 {
		lines = append(lines, row(true, "Every", cyan.Render(cfg.Interval.String())))
	} else {
		lines = append(lines, row(false, "Every", dim.Render("disabled")))
	}
	lines = append(lines, row(st.LogEnabled, "Op logs", dim.Render(onOff(st.LogEnabled))), "")

	lines = append(lines, bold.Render("    Gateway"), "")
	if cfg.APIEnabled {
		lines = append(lines, row(true, "HTTP API", cyan.Render(cfg.APIAddr)))
	} else {
		lines = append(lines, row(false, "HTTP API", dim.Render("disabled")))
	}
	lines = append(lines, row(true, "Unix Socket", cyan.Render(shortenPath(cfg.SocketPath))), "")

	lines = append(lines, bold.Render("    Storage"), "")
	lines = append(lines, row(true, "History", dim.Render(shortenPath(cfg.DBPath))))
	if cfg.HistoryRetention > 0 {
		lines = append(lines, row(true, "Retention", dim.Render(humanize.Comma(int64(cfg.HistoryRetention))+" days")))
	} else {
		lines = append(lines, row(false, "Retention", dim.Render("forever")))
	}
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"), "")
	if cfg.ConfigPath != "" {
		lines = append(lines, row(true, "Config File", dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, row(false, "Config File", dim.Render("default (no file)")))
	}
	lines = append(lines, row(true, "Settings", dim.Render(shortenPath(cfg.SettingsPath))))

	lines = append(lines, "", separator, "",
		"    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"), "")

	fmt.Println(strings.Join(lines, "\n"))
}

func onOff(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if rel, err := filepath.Rel(home, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.Join("~", rel)
	}
	return path
}
