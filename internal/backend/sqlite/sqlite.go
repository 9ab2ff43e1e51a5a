// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package sqlite provides a SQLite backend for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/prakash09/api-connector/internal/backend"
	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/errorlog"
	"github.com/prakash09/api-connector/internal/ratelimit"
)

// Compile-time interface assertions.
var (
	_ ratelimit.Store  = (*Backend)(nil)
	_ errorlog.Sink    = (*Backend)(nil)
	_ errorlog.Lister  = (*Backend)(nil)
	_ calllog.Recorder = (*Backend)(nil)
	_ calllog.Lister   = (*Backend)(nil)
	_ backend.Backend  = (*Backend)(nil)
)

// Backend is a SQLite storage backend.
type Backend struct {
	db *sql.DB
}

// Config contains SQLite connection configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// WAL enables Write-Ahead Logging mode for concurrent reads.
	WAL bool
}

// New creates a new SQLite backend.
func New(cfg Config) (*Backend, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes writes, so only 1 connection for writes
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	b := &Backend{db: db}

	if err := b.configurePragmas(ctx, cfg.WAL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return b, nil
}

// configurePragmas sets SQLite configuration options.
func (b *Backend) configurePragmas(ctx context.Context, enableWAL bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}

	if enableWAL {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}

	for _, pragma := range pragmas {
		if _, err := b.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations.
func (b *Backend) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS rate_limit_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			target_type TEXT NOT NULL,
			target_id TEXT NOT NULL,
			window_start TEXT NOT NULL,
			window_end TEXT NOT NULL,
			request_count INTEGER NOT NULL DEFAULT 0,
			limit_value INTEGER NOT NULL,
			last_request TEXT NOT NULL,
			UNIQUE(target_type, target_id, window_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rate_limit_logs_window_end ON rate_limit_logs(window_end)`,
		`CREATE TABLE IF NOT EXISTS error_logs (
			id TEXT PRIMARY KEY,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			component TEXT NOT NULL,
			context TEXT,
			related_object_type TEXT,
			related_object_id TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_error_logs_created_at ON error_logs(created_at)`,
		`CREATE TABLE IF NOT EXISTS function_calls (
			id TEXT PRIMARY KEY,
			function TEXT NOT NULL,
			arguments TEXT,
			status TEXT NOT NULL,
			status_code INTEGER NOT NULL DEFAULT 0,
			result TEXT,
			error TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_function_calls_function ON function_calls(function)`,
		`CREATE INDEX IF NOT EXISTS idx_function_calls_created_at ON function_calls(created_at)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Increment implements ratelimit.Store with a single upsert. The conflict
// branch only fires while the stored count is below the limit; otherwise no
// row is returned and the call is rejected.
func (b *Backend) Increment(ctx context.Context, key ratelimit.WindowKey, limit int, end, now time.Time) (bool, int, error) {
	var count int
	err := b.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_logs (target_type, target_id, window_start, window_end, request_count, limit_value, last_request)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(target_type, target_id, window_start) DO UPDATE SET
			request_count = rate_limit_logs.request_count + 1,
			limit_value = excluded.limit_value,
			last_request = excluded.last_request
		WHERE rate_limit_logs.request_count < excluded.limit_value
		RETURNING request_count
	`,
		key.TargetType,
		key.TargetID,
		formatTime(key.Start),
		formatTime(end),
		limit,
		formatTime(now),
	).Scan(&count)

	if errors.Is(err, sql.ErrNoRows) {
		current, cerr := b.Count(ctx, key)
		if cerr != nil {
			return false, 0, cerr
		}
		return false, current, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to increment rate limit window: %w", err)
	}

	return true, count, nil
}

// Count implements ratelimit.Store.
func (b *Backend) Count(ctx context.Context, key ratelimit.WindowKey) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx, `
		SELECT request_count FROM rate_limit_logs
		WHERE target_type = ? AND target_id = ? AND window_start = ?
	`, key.TargetType, key.TargetID, formatTime(key.Start)).Scan(&count)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit window: %w", err)
	}
	return count, nil
}

// PruneRateLimits deletes windows that ended before cutoff.
func (b *Backend) PruneRateLimits(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM rate_limit_logs WHERE window_end < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune rate limit windows: %w", err)
	}
	return result.RowsAffected()
}

// LogError implements errorlog.Sink.
func (b *Backend) LogError(ctx context.Context, entry errorlog.Entry) error {
	contextJSON, err := json.Marshal(entry.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal error context: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO error_logs (id, level, message, component, context, related_object_type, related_object_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.ID,
		string(entry.Level),
		entry.Message,
		entry.Component,
		string(contextJSON),
		entry.RelatedType,
		entry.RelatedID,
		formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return nil
}

// RecentErrors implements errorlog.Lister.
func (b *Backend) RecentErrors(ctx context.Context, limit int) ([]errorlog.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT id, level, message, component, context, related_object_type, related_object_id, created_at
		FROM error_logs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query error logs: %w", err)
	}
	defer rows.Close()

	var entries []errorlog.Entry
	for rows.Next() {
		var (
			e                      errorlog.Entry
			level, createdAt       string
			contextJSON            sql.NullString
			relatedType, relatedID sql.NullString
		)
		if err := rows.Scan(&e.ID, &level, &e.Message, &e.Component, &contextJSON, &relatedType, &relatedID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan error log: %w", err)
		}
		e.Level = errorlog.Level(level)
		e.RelatedType = relatedType.String
		e.RelatedID = relatedID.String
		e.CreatedAt = parseTime(createdAt)
		if contextJSON.Valid && contextJSON.String != "" && contextJSON.String != "null" {
			if err := json.Unmarshal([]byte(contextJSON.String), &e.Context); err != nil {
				return nil, fmt.Errorf("failed to unmarshal error context: %w", err)
			}
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// RecordCall implements calllog.Recorder.
func (b *Backend) RecordCall(ctx context.Context, rec calllog.Record) error {
	argsJSON, err := json.Marshal(rec.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO function_calls (id, function, arguments, status, status_code, result, error, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Function,
		string(argsJSON),
		string(rec.Status),
		rec.StatusCode,
		string(resultJSON),
		rec.Error,
		rec.Duration.Milliseconds(),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert function call: %w", err)
	}
	return nil
}

// RecentCalls implements calllog.Lister.
func (b *Backend) RecentCalls(ctx context.Context, function string, limit int) ([]calllog.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, function, arguments, status, status_code, result, error, duration_ms, created_at FROM function_calls`
	args := []any{}
	if function != "" {
		query += ` WHERE function = ?`
		args = append(args, function)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query function calls: %w", err)
	}
	defer rows.Close()

	var records []calllog.Record
	for rows.Next() {
		var (
			rec                  calllog.Record
			status, createdAt    string
			argsJSON, resultJSON sql.NullString
			errText              sql.NullString
			durationMs           int64
		)
		if err := rows.Scan(&rec.ID, &rec.Function, &argsJSON, &status, &rec.StatusCode, &resultJSON, &errText, &durationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan function call: %w", err)
		}
		rec.Status = calllog.Status(status)
		rec.Error = errText.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		rec.CreatedAt = parseTime(createdAt)
		if err := unmarshalObject(argsJSON, &rec.Arguments); err != nil {
			return nil, err
		}
		if err := unmarshalObject(resultJSON, &rec.Result); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the database connection.
func (b *Backend) Close() error {
	return b.db.Close()
}

// Helper functions

// timeFormat is RFC3339 with fixed-width nanoseconds so stored values sort
// lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime converts a time to a sortable UTC string.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTime parses an RFC3339 string, returning the zero time on failure.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func unmarshalObject(s sql.NullString, dst *map[string]any) error {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s.String), dst); err != nil {
		return fmt.Errorf("failed to unmarshal column: %w", err)
	}
	return nil
}
