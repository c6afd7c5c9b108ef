package model

import "time"

// Settings is the user-facing backup configuration.
// The engine treats one value as an immutable snapshot for the whole run.
type Settings struct {
	Enabled        bool   `yaml:"enabled" json:"enabled" mapstructure:"enabled"`
	TargetPath     string `yaml:"target-path" json:"target_path" mapstructure:"target-path" validate:"required"`
	RetentionLimit int    `yaml:"retention-limit" json:"retention_limit" mapstructure:"retention-limit" validate:"gte=1"`
	LogEnabled     bool   `yaml:"log-enabled" json:"log_enabled" mapstructure:"log-enabled"`
}

// Phase is the position of a run in its state machine.
type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseSourceResolved     Phase = "source_resolved"
	PhaseWorkingCopyCreated Phase = "working_copy_created"
	PhaseCopied             Phase = "copied"
	PhaseArchived           Phase = "archived"
	PhasePruned             Phase = "pruned"
	PhaseCleanupScheduled   Phase = "cleanup_scheduled"
	PhaseDone               Phase = "done"
)

// TriggerKind records what started a run.
type TriggerKind string

const (
	TriggerManual   TriggerKind = "manual"
	TriggerStartup  TriggerKind = "startup"
	TriggerInterval TriggerKind = "interval"
	TriggerAPI      TriggerKind = "api"
)

// Run is one execution of copy -> archive -> prune -> deferred cleanup.
// It is owned by the goroutine executing it; readers get a RunRecord.
type Run struct {
	ID          string
	Trigger     TriggerKind
	Source      string
	WorkingCopy string
	Archive     string
	ArchiveSize int64
	StartedAt   time.Time
	Elapsed     time.Duration
	FilesTotal  int
	FilesCopied int
	Skipped     []string
	SkippedDirs []string
	Pruned      int
	Phase       Phase
	Success     bool
	Message     string
}

// Record returns an immutable copy of the run suitable for history and transport.
func (r *Run) Record() RunRecord {
	skipped := make([]string, len(r.Skipped))
	copy(skipped, r.Skipped)
	return RunRecord{
		ID:          r.ID,
		Trigger:     r.Trigger,
		Source:      r.Source,
		Archive:     r.Archive,
		ArchiveSize: r.ArchiveSize,
		StartedAt:   r.StartedAt,
		Elapsed:     r.Elapsed,
		FilesTotal:  r.FilesTotal,
		FilesCopied: r.FilesCopied,
		Skipped:     skipped,
		Pruned:      r.Pruned,
		Success:     r.Success,
		Message:     r.Message,
	}
}

// RunRecord is the persisted/transported trace of a finished run.
type RunRecord struct {
	ID          string        `json:"id"`
	Trigger     TriggerKind   `json:"trigger"`
	Source      string        `json:"source"`
	Archive     string        `json:"archive"`
	ArchiveSize int64         `json:"archive_size"`
	StartedAt   time.Time     `json:"started_at"`
	Elapsed     time.Duration `json:"elapsed"`
	FilesTotal  int           `json:"files_total"`
	FilesCopied int           `json:"files_copied"`
	Skipped     []string      `json:"skipped"`
	Pruned      int           `json:"pruned"`
	Success     bool          `json:"success"`
	Message     string        `json:"message,omitempty"`
}

// ArchiveInfo describes one archive in the target directory.
type ArchiveInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// Status is the live view of the engine for UI and API readers.
type Status struct {
	InProgress bool       `json:"in_progress"`
	Progress   float64    `json:"progress"`
	Phase      Phase      `json:"phase"`
	LastRun    *RunRecord `json:"last_run,omitempty"`
}

// SettingsPatch is a partial settings update; nil fields are left alone.
type SettingsPatch struct {
	Enabled        *bool   `json:"enabled,omitempty"`
	TargetPath     *string `json:"target_path,omitempty"`
	RetentionLimit *int    `json:"retention_limit,omitempty"`
	LogEnabled     *bool   `json:"log_enabled,omitempty"`
}

// Apply copies the set fields onto st.
func (p SettingsPatch) Apply(st *Settings) {
	if p.Enabled != nil {
		st.Enabled = *p.Enabled
	}
	if p.TargetPath != nil {
		st.TargetPath = *p.TargetPath
	}
	if p.RetentionLimit != nil {
		st.RetentionLimit = *p.RetentionLimit
	}
	if p.LogEnabled != nil {
		st.LogEnabled = *p.LogEnabled
	}
}
