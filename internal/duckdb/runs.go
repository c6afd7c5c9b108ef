package duckdb

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/snapvault/internal/model"
)

var (
	_ model.RunRecorder = (*Store)(nil)
	_ model.RunReader   = (*Store)(nil)
)

// RecordRun stores a finished run and its skipped paths.
func (s *Store) RecordRun(rec model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: begin: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, trigger_kind, source, archive, archive_size, started_at, elapsed_ms,
			files_total, files_copied, skipped, pruned, success, message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Trigger), rec.Source, rec.Archive, rec.ArchiveSize,
		rec.StartedAt.UTC(), rec.Elapsed.Milliseconds(),
		rec.FilesTotal, rec.FilesCopied, len(rec.Skipped), rec.Pruned,
		rec.Success, rec.Message,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("duckdb: insert run: %w", err)
	}

	for _, p := range rec.Skipped {
		if _, err := tx.ExecContext(ctx, "INSERT INTO skipped_files (run_id, path) VALUES (?, ?)", rec.ID, p); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("duckdb: insert skipped file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first, with skipped paths.
func (s *Store) RecentRuns(limit int) ([]model.RunRecord, error) {
	if limit <= 0 {
		limit = model.DefaultRecentRuns
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, trigger_kind, source, archive, archive_size, started_at, elapsed_ms,
		       files_total, files_copied, pruned, success, message
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("duckdb: query runs: %w", err)
	}
	defer rows.Close()

	var out []model.RunRecord
	index := make(map[string]int)
	for rows.Next() {
		var (
			rec       model.RunRecord
			trigger   string
			elapsedMS int64
		)
		if err := rows.Scan(&rec.ID, &trigger, &rec.Source, &rec.Archive, &rec.ArchiveSize,
			&rec.StartedAt, &elapsedMS, &rec.FilesTotal, &rec.FilesCopied, &rec.Pruned,
			&rec.Success, &rec.Message); err != nil {
			return nil, fmt.Errorf("duckdb: scan run: %w", err)
		}
		rec.Trigger = model.TriggerKind(trigger)
		rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		rec.Skipped = []string{}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	skipped, err := s.db.QueryContext(ctx, `
		SELECT s.run_id, s.path
		FROM skipped_files s
		JOIN (SELECT id FROM runs ORDER BY started_at DESC, id DESC LIMIT ?) r ON r.id = s.run_id
		ORDER BY s.run_id, s.path`, limit)
	if err != nil {
		return nil, fmt.Errorf("duckdb: query skipped files: %w", err)
	}
	defer skipped.Close()

	for skipped.Next() {
		var id, path string
		if err := skipped.Scan(&id, &path); err != nil {
			return nil, fmt.Errorf("duckdb: scan skipped file: %w", err)
		}
		if i, ok := index[id]; ok {
			out[i].Skipped = append(out[i].Skipped, path)
		}
	}
	return out, skipped.Err()
}

// RunCount returns the number of stored runs.
func (s *Store) RunCount() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count runs: %w", err)
	}
	return n, nil
}

// DeleteBefore removes runs that started before cutoff and returns how many
// runs were deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("duckdb: begin: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM skipped_files WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)", cutoff.UTC()); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("duckdb: delete skipped files: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UTC())
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("duckdb: delete runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("duckdb: commit delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
