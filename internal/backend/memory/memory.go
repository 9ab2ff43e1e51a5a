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

// Package memory provides an in-memory backend implementation.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prakash09/api-connector/internal/backend"
	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/errorlog"
	"github.com/prakash09/api-connector/internal/ratelimit"
)

// Compile-time interface assertions.
var (
	_ ratelimit.Store  = (*Backend)(nil)
	_ errorlog.Sink    = (*Backend)(nil)
	_ calllog.Recorder = (*Backend)(nil)
	_ backend.Backend  = (*Backend)(nil)
)

// maxRecords bounds the retained error and call records.
const maxRecords = 1000

// sweepInterval is the minimum time between scans for ended windows.
const sweepInterval = time.Minute

type window struct {
	count int
	limit int
	end   time.Time
	last  time.Time
}

// Backend is an in-memory storage backend.
type Backend struct {
	mu      sync.Mutex
	windows map[ratelimit.WindowKey]*window
	swept   time.Time
	errors  []errorlog.Entry
	calls   []calllog.Record
}

// New creates a new in-memory backend.
func New() *Backend {
	return &Backend{
		windows: make(map[ratelimit.WindowKey]*window),
	}
}

// Increment implements ratelimit.Store.
func (b *Backend) Increment(ctx context.Context, key ratelimit.WindowKey, limit int, end, now time.Time) (bool, int, error) {
	key.Start = key.Start.UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.sweep(now)

	w, ok := b.windows[key]
	if !ok {
		b.windows[key] = &window{count: 1, limit: limit, end: end, last: now}
		return true, 1, nil
	}
	if w.count >= limit {
		return false, w.count, nil
	}
	w.count++
	w.limit = limit
	w.last = now
	return true, w.count, nil
}

// Count implements ratelimit.Store.
func (b *Backend) Count(ctx context.Context, key ratelimit.WindowKey) (int, error) {
	key.Start = key.Start.UTC()

	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.windows[key]; ok {
		return w.count, nil
	}
	return 0, nil
}

// sweep drops windows that ended before now, at most once per
// sweepInterval. Caller holds mu.
func (b *Backend) sweep(now time.Time) {
	if !b.swept.IsZero() && now.Sub(b.swept) < sweepInterval {
		return
	}
	b.swept = now
	for k, w := range b.windows {
		if !w.end.After(now) {
			delete(b.windows, k)
		}
	}
}

// LogError implements errorlog.Sink.
func (b *Backend) LogError(ctx context.Context, entry errorlog.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.errors = append(b.errors, entry)
	if len(b.errors) > maxRecords {
		b.errors = b.errors[len(b.errors)-maxRecords:]
	}
	return nil
}

// RecentErrors implements errorlog.Lister.
func (b *Backend) RecentErrors(ctx context.Context, limit int) ([]errorlog.Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]errorlog.Entry, 0, len(b.errors))
	for i := len(b.errors) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, b.errors[i])
	}
	return out, nil
}

// RecordCall implements calllog.Recorder.
func (b *Backend) RecordCall(ctx context.Context, rec calllog.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, rec)
	if len(b.calls) > maxRecords {
		b.calls = b.calls[len(b.calls)-maxRecords:]
	}
	return nil
}

// RecentCalls implements calllog.Lister.
func (b *Backend) RecentCalls(ctx context.Context, function string, limit int) ([]calllog.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]calllog.Record, 0)
	for i := len(b.calls) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if function != "" && b.calls[i].Function != function {
			continue
		}
		out = append(out, b.calls[i])
	}
	return out, nil
}

// Close implements io.Closer.
func (b *Backend) Close() error {
	return nil
}
