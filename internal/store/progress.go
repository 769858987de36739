package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"eclicrawler/internal/logging"
	"eclicrawler/internal/types"
)

// ProgressStore persists bulk operation progress in SQLite. The full record
// is stored as JSON; a few columns are mirrored out for querying.
type ProgressStore struct {
	db *sql.DB
}

// NewProgressStore opens (creating if needed) the progress database.
func NewProgressStore(path string) (*ProgressStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create progress directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open progress database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &ProgressStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("Progress store ready at %s", path)
	return s, nil
}

func (s *ProgressStore) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS bulk_operations (
			operation_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			retry_count INTEGER NOT NULL DEFAULT 0,
			documents_succeeded INTEGER NOT NULL DEFAULT 0,
			documents_failed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL DEFAULT '',
			completed_at TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bulk_status ON bulk_operations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bulk_created ON bulk_operations(created_at)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to initialize progress schema: %w", err)
		}
	}
	return nil
}

// Save upserts the full progress record.
func (s *ProgressStore) Save(ctx context.Context, p *types.BulkCrawlProgress) error {
	if p.OperationID == "" {
		return fmt.Errorf("operation ID must not be empty")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress %s: %w", p.OperationID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bulk_operations (
			operation_id, status, retry_count, documents_succeeded,
			documents_failed, created_at, started_at, completed_at, data
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(operation_id) DO UPDATE SET
			status = excluded.status,
			retry_count = excluded.retry_count,
			documents_succeeded = excluded.documents_succeeded,
			documents_failed = excluded.documents_failed,
			created_at = excluded.created_at,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			data = excluded.data`,
		p.OperationID, string(p.Status), p.RetryCount,
		p.DocumentsSucceeded, p.DocumentsFailed,
		formatTime(p.CreatedAt), formatTime(p.StartedAt), formatTime(p.CompletedAt),
		string(data))
	if err != nil {
		return fmt.Errorf("failed to save progress %s: %w", p.OperationID, err)
	}
	return nil
}

func (s *ProgressStore) queryProgress(ctx context.Context, query string, args ...any) ([]*types.BulkCrawlProgress, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("progress query failed: %w", err)
	}
	defer rows.Close()

	var out []*types.BulkCrawlProgress
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p types.BulkCrawlProgress
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			logging.BulkWarn("unreadable progress record skipped: %v", err)
			continue
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// FindByOperationID returns the record, or nil when absent.
func (s *ProgressStore) FindByOperationID(ctx context.Context, operationID string) (*types.BulkCrawlProgress, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM bulk_operations WHERE operation_id = ?", operationID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("progress query failed: %w", err)
	}
	var p types.BulkCrawlProgress
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("corrupt progress record %s: %w", operationID, err)
	}
	return &p, nil
}

// FindActive returns operations in a running status.
func (s *ProgressStore) FindActive(ctx context.Context) ([]*types.BulkCrawlProgress, error) {
	return s.queryProgress(ctx, `
		SELECT data FROM bulk_operations
		WHERE status IN (?, ?, ?, ?)
		ORDER BY created_at DESC`,
		string(types.BulkInitializing), string(types.BulkDiscovering),
		string(types.BulkCrawling), string(types.BulkResuming))
}

// FindPaused returns paused operations.
func (s *ProgressStore) FindPaused(ctx context.Context) ([]*types.BulkCrawlProgress, error) {
	return s.FindByStatus(ctx, types.BulkPaused)
}

// FindByStatus returns operations in the given status, newest first.
func (s *ProgressStore) FindByStatus(ctx context.Context, status types.BulkCrawlStatus) ([]*types.BulkCrawlProgress, error) {
	return s.queryProgress(ctx,
		"SELECT data FROM bulk_operations WHERE status = ? ORDER BY created_at DESC",
		string(status))
}

// FindRecent returns operations created after the given time.
func (s *ProgressStore) FindRecent(ctx context.Context, after time.Time) ([]*types.BulkCrawlProgress, error) {
	return s.queryProgress(ctx,
		"SELECT data FROM bulk_operations WHERE created_at > ? ORDER BY created_at DESC",
		formatTime(after))
}

// FindStuck returns operations that look abandoned: still marked as
// discovering or crawling but started before the threshold.
func (s *ProgressStore) FindStuck(ctx context.Context, startedBefore time.Time) ([]*types.BulkCrawlProgress, error) {
	return s.queryProgress(ctx, `
		SELECT data FROM bulk_operations
		WHERE status IN (?, ?) AND started_at != '' AND started_at < ?`,
		string(types.BulkDiscovering), string(types.BulkCrawling),
		formatTime(startedBefore))
}

// FindFailedForRetry returns failed operations with fewer than three
// retries, created after the given time.
func (s *ProgressStore) FindFailedForRetry(ctx context.Context, after time.Time) ([]*types.BulkCrawlProgress, error) {
	return s.queryProgress(ctx, `
		SELECT data FROM bulk_operations
		WHERE status = ? AND retry_count < 3 AND created_at > ?
		ORDER BY created_at ASC`,
		string(types.BulkFailed), formatTime(after))
}

// CountByStatus returns how many operations are in the given status.
func (s *ProgressStore) CountByStatus(ctx context.Context, status types.BulkCrawlStatus) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM bulk_operations WHERE status = ?", string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("progress count failed: %w", err)
	}
	return n, nil
}

// Statistics aggregates operation and document counters across all records.
func (s *ProgressStore) Statistics(ctx context.Context) (*types.BulkStatistics, error) {
	stats := &types.BulkStatistics{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN status IN (?, ?, ?, ?) THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(documents_succeeded), 0),
		       COALESCE(SUM(documents_failed), 0)
		FROM bulk_operations`,
		string(types.BulkCompleted), string(types.BulkFailed), string(types.BulkCancelled),
		string(types.BulkInitializing), string(types.BulkDiscovering),
		string(types.BulkCrawling), string(types.BulkResuming),
	).Scan(&stats.TotalOperations, &stats.CompletedOperations, &stats.FailedOperations,
		&stats.CancelledOperations, &stats.ActiveOperations,
		&stats.DocumentsSucceeded, &stats.DocumentsFailed)
	if err != nil {
		return nil, fmt.Errorf("progress statistics failed: %w", err)
	}
	return stats, nil
}

// DeleteOldCompleted removes COMPLETED and CANCELLED operations that
// finished before the given time. Returns how many were removed.
func (s *ProgressStore) DeleteOldCompleted(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM bulk_operations
		WHERE status IN (?, ?) AND completed_at != '' AND completed_at < ?`,
		string(types.BulkCompleted), string(types.BulkCancelled), formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("progress cleanup failed: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Bulk("removed %d old completed operations", n)
	}
	return n, nil
}

// Delete removes one operation record.
func (s *ProgressStore) Delete(ctx context.Context, operationID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM bulk_operations WHERE operation_id = ?", operationID)
	if err != nil {
		return fmt.Errorf("failed to delete operation %s: %w", operationID, err)
	}
	return nil
}

// Close closes the database.
func (s *ProgressStore) Close() error {
	return s.db.Close()
}
