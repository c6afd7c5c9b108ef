package model

import "time"

// Shared defaults used by both the daemon and the TUI client.
const (
	DefaultUpdateInterval = 500 * time.Millisecond
	DefaultRetentionLimit = 10
	DefaultStartDelay     = 5 * time.Second
	DefaultCleanupDelay   = 10 * time.Second
	DefaultRecentRuns     = 20
)
