package duckdb

import (
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rs/zerolog"
)

const cleanupEvery = time.Hour

// RetentionConfig holds configuration for the history cleaner.
type RetentionConfig struct {
	RetentionDays int
	Clock         clock.Clock
	Logger        *zerolog.Logger
}

// RetentionCleaner periodically deletes run history older than the
// configured retention period. Archives on disk are not touched.
type RetentionCleaner struct {
	store         *Store
	retentionDays int
	clock         clock.Clock
	logger        zerolog.Logger
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once
}

// NewRetentionCleaner starts a cleaner. It returns nil when retention is 0
// (disabled).
func NewRetentionCleaner(store *Store, conf RetentionConfig) *RetentionCleaner {
	if conf.RetentionDays <= 0 {
		return nil
	}
	clk := conf.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	logger := zerolog.Nop()
	if conf.Logger != nil {
		logger = *conf.Logger
	}

	rc := &RetentionCleaner{
		store:         store,
		retentionDays: conf.RetentionDays,
		clock:         clk,
		logger:        logger.With().Str("component", "history-retention").Logger(),
		done:          make(chan struct{}),
	}

	// Catch up after downtime.
	rc.cleanup()

	rc.wg.Add(1)
	go rc.tickLoop()
	return rc
}

func (rc *RetentionCleaner) tickLoop() {
	defer rc.wg.Done()
	for {
		select {
		case <-rc.clock.After(cleanupEvery):
			rc.cleanup()
		case <-rc.done:
			return
		}
	}
}

func (rc *RetentionCleaner) cleanup() {
	cutoff := rc.clock.Now().Add(-time.Duration(rc.retentionDays) * 24 * time.Hour)

	rows, err := rc.store.DeleteBefore(cutoff)
	if err != nil {
		rc.logger.Warn().Err(err).Msg("history cleanup failed")
		return
	}
	if rows > 0 {
		rc.logger.Info().Int64("runs", rows).Int("days", rc.retentionDays).Msg("expired run history deleted")
	}
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
