package backup

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/rs/zerolog"

	"github.com/tinytelemetry/snapvault/internal/model"
	"github.com/tinytelemetry/snapvault/internal/retention"
	"github.com/tinytelemetry/snapvault/internal/snapshot"
)

const defaultArchiveTag = "snapvault"

var (
	// ErrBackupInProgress is returned when a run is requested while another
	// one is still in flight.
	ErrBackupInProgress = errors.ConstError("backup already in progress")

	// ErrSourceUnresolved is the cause of failures to locate the source tree.
	ErrSourceUnresolved = errors.ConstError("backup source unresolved")

	// ErrStopped is returned by Run after the manager has been stopped.
	ErrStopped = errors.ConstError("backup manager stopped")
)

// Config wires the orchestrator to its collaborators.
type Config struct {
	Settings model.SettingsProvider
	Source   SourceResolver

	TempDir      string // defaults to os.TempDir()
	ArchiveTag   string
	StartDelay   time.Duration
	CleanupDelay time.Duration

	Events    model.EventSink
	Recorders []model.RunRecorder

	Copier *snapshot.Copier
	Pruner *retention.Pruner
	Clock  clock.Clock
	Logger *zerolog.Logger
}
