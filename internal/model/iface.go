package model

// EventSink receives operation events. context is the directory the run
// writes its archives to; sinks that persist logs keep them there.
type EventSink interface {
	Event(op, detail, context string)
	Failure(err error, context string)
}

// RunRecorder consumes finished runs (history store, metrics).
type RunRecorder interface {
	RecordRun(rec RunRecord) error
}

// RunReader provides read access to run history.
type RunReader interface {
	RecentRuns(limit int) ([]RunRecord, error)
}

// SettingsProvider hands out settings snapshots.
type SettingsProvider interface {
	Snapshot() Settings
}

// BackupController is the control surface exposed to HTTP, socket RPC and TUI.
type BackupController interface {
	Trigger(kind TriggerKind) bool
	Status() Status
}

// ArchiveLister lists archives currently present in the target directory.
type ArchiveLister interface {
	ListArchives() ([]ArchiveInfo, error)
}

// SettingsEditor reads and mutates persisted settings.
type SettingsEditor interface {
	SettingsProvider
	Update(fn func(*Settings)) (Settings, error)
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) Event(string, string, string) {}
func (NopEvents) Failure(error, string)        {}

// RunSummarizer is implemented by event sinks that also keep a per-run
// summary next to the archives.
type RunSummarizer interface {
	Summarize(rec RunRecord, context string)
}
