// Package oplog writes backup operation logs next to the archives they
// describe: a full event log, an error log with stack detail and a daily
// human-readable summary.
package oplog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/juju/errors"
	"github.com/juju/lumberjack/v2"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/snapvault/internal/model"
)

const (
	FullLogName  = "snapvault_full.log"
	ErrorLogName = "snapvault_error.log"

	dailyPrefix = "BackupLog_"
	dailyFormat = "20060102"
)

// DailyLogName returns the summary log name for the day of t.
func DailyLogName(t time.Time) string {
	return dailyPrefix + t.Format(dailyFormat) + ".txt"
}

type dirLogs struct {
	fullFile *lumberjack.Logger
	errFile  *lumberjack.Logger
	full     zerolog.Logger
	errs     zerolog.Logger
}

// Logger is a model.EventSink that persists events under the directory given
// as the event context. Write failures are swallowed; logging never fails a run.
type Logger struct {
	// Now stamps daily summary entries. Nil means time.Now.
	Now func() time.Time

	mu   sync.Mutex
	dirs map[string]*dirLogs
}

var _ model.EventSink = (*Logger)(nil)

// New returns an operation logger with no open files.
func New() *Logger {
	return &Logger{dirs: make(map[string]*dirLogs)}
}

func (l *Logger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *Logger) logsFor(dir string) *dirLogs {
	if dir == "" {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if d, ok := l.dirs[dir]; ok {
		return d
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil
	}
	d := &dirLogs{
		fullFile: rotating(filepath.Join(dir, FullLogName)),
		errFile:  rotating(filepath.Join(dir, ErrorLogName)),
	}
	d.full = zerolog.New(d.fullFile).With().Timestamp().Logger()
	d.errs = zerolog.New(d.errFile).With().Timestamp().Logger()
	l.dirs[dir] = d
	return d
}

func rotating(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
	}
}

// Event appends one operation record to the full log in dir.
func (l *Logger) Event(op, detail, dir string) {
	d := l.logsFor(dir)
	if d == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	d.full.Info().Str("op", op).Msg(detail)
}

// Failure appends err with its annotation stack to the error log in dir and
// mirrors the message into the full log.
func (l *Logger) Failure(err error, dir string) {
	if err == nil {
		return
	}
	d := l.logsFor(dir)
	if d == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	d.errs.Error().Str("stack", errors.ErrorStack(err)).Msg(err.Error())
	d.full.Error().Str("op", "ERROR").Msg(err.Error())
}

// Summarize appends a one-line run summary to the daily log in dir.
func (l *Logger) Summarize(rec model.RunRecord, dir string) {
	if dir == "" {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	now := l.now()
	f, err := os.OpenFile(filepath.Join(dir, DailyLogName(now)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	writeSummary(f, rec, now)
}

func writeSummary(w io.Writer, rec model.RunRecord, now time.Time) {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05",
	}
	logger := zerolog.New(cw).With().Time(zerolog.TimestampFieldName, now).Logger()

	elapsed := fmt.Sprintf("%.2fs", rec.Elapsed.Seconds())
	if rec.Success {
		logger.Info().
			Str("archive", filepath.Base(rec.Archive)).
			Str("elapsed", elapsed).
			Int("skipped", len(rec.Skipped)).
			Str("size", humanize.Bytes(uint64(rec.ArchiveSize))).
			Msg("backup succeeded")
		return
	}
	logger.Error().
		Str("elapsed", elapsed).
		Msg("backup failed: " + rec.Message)
}

// Close releases every open log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var first error
	for dir, d := range l.dirs {
		if err := d.fullFile.Close(); err != nil && first == nil {
			first = err
		}
		if err := d.errFile.Close(); err != nil && first == nil {
			first = err
		}
		delete(l.dirs, dir)
	}
	return first
}
