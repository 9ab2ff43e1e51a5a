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

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/prakash09/api-connector/internal/auth"
)

var _ Store = (*Reloadable)(nil)

// reloadDebounce coalesces the burst of events editors emit for one save.
const reloadDebounce = 200 * time.Millisecond

// Reloadable serves the current snapshot and can swap it atomically.
type Reloadable struct {
	current atomic.Pointer[Snapshot]
	logger  *slog.Logger

	mu       sync.Mutex
	onReload []func(*Snapshot)
}

// NewReloadable wraps an initial snapshot.
func NewReloadable(initial *Snapshot, logger *slog.Logger) *Reloadable {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reloadable{logger: logger.With(slog.String("component", "catalog"))}
	r.current.Store(initial)
	return r
}

// Snapshot returns the snapshot currently served.
func (r *Reloadable) Snapshot() *Snapshot {
	return r.current.Load()
}

// Swap replaces the served snapshot.
func (r *Reloadable) Swap(s *Snapshot) {
	r.current.Store(s)
}

// OnReload registers fn to run after each successful reload.
func (r *Reloadable) OnReload(fn func(*Snapshot)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Reload loads path and swaps it in. On failure the previous snapshot stays.
func (r *Reloadable) Reload(path string) error {
	snap, err := LoadFile(path)
	if err != nil {
		return err
	}
	r.Swap(snap)
	for _, w := range snap.Warnings() {
		r.logger.Warn("catalog warning", "warning", w)
	}
	r.logger.Info("catalog reloaded", "path", path)

	r.mu.Lock()
	hooks := append([]func(*Snapshot)(nil), r.onReload...)
	r.mu.Unlock()
	for _, fn := range hooks {
		fn(snap)
	}
	return nil
}

// Watch reloads path whenever it changes until ctx is done. The parent
// directory is watched so editors that replace the file are handled.
func (r *Reloadable) Watch(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return fmt.Errorf("failed to watch path: %w", err)
	}

	go r.watchLoop(ctx, fsw, absPath)
	r.logger.Info("catalog watcher started", "path", absPath)
	return nil
}

func (r *Reloadable) watchLoop(ctx context.Context, fsw *fsnotify.Watcher, path string) {
	defer fsw.Close()

	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			r.logger.Info("catalog watcher stopped")
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != path || !event.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := r.Reload(path); err != nil {
				r.logger.Error("catalog reload failed, keeping previous version", "path", path, "error", err)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			r.logger.Error("catalog watcher error", "error", err)
		}
	}
}

// Function implements Store.
func (r *Reloadable) Function(ctx context.Context, name string) (*Function, error) {
	return r.Snapshot().Function(ctx, name)
}

// Functions implements Store.
func (r *Reloadable) Functions(ctx context.Context) ([]*Function, error) {
	return r.Snapshot().Functions(ctx)
}

// Endpoint implements Store.
func (r *Reloadable) Endpoint(ctx context.Context, id string) (*Endpoint, error) {
	return r.Snapshot().Endpoint(ctx, id)
}

// API implements Store.
func (r *Reloadable) API(ctx context.Context, id string) (*API, error) {
	return r.Snapshot().API(ctx, id)
}

// Auth implements Store.
func (r *Reloadable) Auth(ctx context.Context, id string) (*auth.Config, error) {
	return r.Snapshot().Auth(ctx, id)
}
