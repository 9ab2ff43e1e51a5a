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

// Package errorlog records operator-visible failures. Writes are best effort:
// a failing sink never fails the call that produced the entry.
package errorlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Level of an entry.
type Level string

const (
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Entry is one error log record.
type Entry struct {
	ID          string         `json:"id"`
	Level       Level          `json:"level"`
	Message     string         `json:"message"`
	Component   string         `json:"component"`
	Context     map[string]any `json:"context,omitempty"`
	RelatedType string         `json:"related_object_type,omitempty"`
	RelatedID   string         `json:"related_object_id,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Sink persists entries.
type Sink interface {
	LogError(ctx context.Context, entry Entry) error
}

// Lister is implemented by sinks that can read entries back, newest first.
type Lister interface {
	RecentErrors(ctx context.Context, limit int) ([]Entry, error)
}

// Record writes entry to sink, assigning an ID and timestamp when unset. A
// nil sink or a sink failure results in a local log line instead.
func Record(ctx context.Context, sink Sink, logger *slog.Logger, entry Entry) {
	if logger == nil {
		logger = slog.Default()
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Level == "" {
		entry.Level = LevelError
	}

	if sink == nil {
		logEntry(ctx, logger, entry)
		return
	}

	if err := sink.LogError(ctx, entry); err != nil {
		logger.Error("failed to write error log entry",
			"error", err,
			"entry_id", entry.ID,
			"entry_component", entry.Component,
			"entry_message", entry.Message)
	}
}

// SlogSink writes entries to a logger only.
type SlogSink struct {
	Logger *slog.Logger
}

// LogError implements Sink.
func (s *SlogSink) LogError(ctx context.Context, entry Entry) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logEntry(ctx, logger, entry)
	return nil
}

func logEntry(ctx context.Context, logger *slog.Logger, entry Entry) {
	level := slog.LevelError
	if entry.Level == LevelWarning {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, entry.Message,
		"entry_id", entry.ID,
		"entry_component", entry.Component,
		"related_object_type", entry.RelatedType,
		"related_object_id", entry.RelatedID)
}
