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

package shared

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prakash09/api-connector/internal/auth"
	"github.com/prakash09/api-connector/internal/backend"
	"github.com/prakash09/api-connector/internal/backend/memory"
	redisbackend "github.com/prakash09/api-connector/internal/backend/redis"
	"github.com/prakash09/api-connector/internal/backend/sqlite"
	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/config"
	"github.com/prakash09/api-connector/internal/connector"
	"github.com/prakash09/api-connector/internal/errorlog"
	"github.com/prakash09/api-connector/internal/function"
	"github.com/prakash09/api-connector/internal/log"
	"github.com/prakash09/api-connector/internal/ratelimit"
	"github.com/prakash09/api-connector/internal/tracing"
)

// App holds the components one apihub process runs with.
type App struct {
	Settings  *config.Settings
	Logger    *slog.Logger
	Catalog   *catalog.Reloadable
	Limiter   *ratelimit.Limiter
	Connector *connector.Connector
	Executor  *function.Executor
	Errors    errorlog.Lister
	Calls     calllog.Lister
	Telemetry *tracing.Provider

	closers []func(context.Context) error
}

// AppOptions tunes Bootstrap for a command.
type AppOptions struct {
	// LogOutput receives log records (default: os.Stderr).
	LogOutput io.Writer

	// Catalog overrides the configured catalog path.
	Catalog string

	// Telemetry starts the tracing provider.
	Telemetry bool
}

// LoadSettings reads .env and the configuration file selected by --config.
func LoadSettings() (*config.Settings, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	return config.Load(GetConfigPath())
}

// NewLogger builds the process logger from settings.
func NewLogger(cfg *config.Settings, out io.Writer) *slog.Logger {
	level := cfg.Log.Level
	if verboseFlag {
		level = "debug"
	}
	return log.New(&log.Config{
		Level:     level,
		Format:    log.Format(cfg.Log.Format),
		Output:    out,
		AddSource: cfg.Log.AddSource,
	})
}

// Bootstrap loads configuration and wires storage, catalog, connector and
// executor. Close releases everything it opened.
func Bootstrap(ctx context.Context, opts AppOptions) (_ *App, err error) {
	settings, err := LoadSettings()
	if err != nil {
		return nil, &ExitError{Code: ExitConfigError, Message: "failed to load configuration", Cause: err}
	}
	if opts.Catalog != "" {
		settings.Catalog.Path = opts.Catalog
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger := NewLogger(settings, out)

	app := &App{Settings: settings, Logger: logger}
	defer func() {
		if err != nil {
			_ = app.Close(context.Background())
		}
	}()

	snap, err := catalog.LoadFile(settings.Catalog.Path)
	if err != nil {
		return nil, NewInvalidCatalogError("failed to load catalog", err)
	}
	for _, w := range snap.Warnings() {
		logger.Warn("catalog warning", "warning", w)
	}
	app.Catalog = catalog.NewReloadable(snap, logger)

	store, err := openBackend(ctx, settings.Backend)
	if err != nil {
		return nil, NewExecutionError("failed to open backend", err)
	}
	app.closers = append(app.closers, func(context.Context) error { return store.Close() })
	app.Errors = store
	app.Calls = store

	var connOpts []connector.Option
	var execOpts []function.Option
	if opts.Telemetry {
		tp, err := tracing.NewProvider(ctx, tracing.Config{
			ServiceName:    "apihub",
			ServiceVersion: version,
			Exporter:       settings.Tracing.Exporter,
			Endpoint:       settings.Tracing.Endpoint,
			Insecure:       settings.Tracing.Insecure,
			Headers:        settings.Tracing.Headers,
			SampleRate:     settings.Tracing.SampleRate,
			Writer:         out,
		})
		if err != nil {
			return nil, NewExecutionError("failed to start telemetry", err)
		}
		app.Telemetry = tp
		app.closers = append(app.closers, tp.Shutdown)
		connOpts = append(connOpts, connector.WithTracerProvider(tp.TracerProvider()))
		execOpts = append(execOpts,
			function.WithTracerProvider(tp.TracerProvider()),
			function.WithMeterProvider(tp.MeterProvider()),
		)
	}

	var refresher auth.Refresher
	if settings.Connector.OAuth2Refresh {
		refresher = &auth.TokenSourceRefresher{HTTPClient: connector.NewHTTPClient(settings.Connector.Timeout)}
	}

	app.Limiter = ratelimit.New(store, logger)
	app.Connector = connector.New(append(connOpts,
		connector.WithLimiter(app.Limiter),
		connector.WithAuthResolver(auth.NewResolver(refresher, logger)),
		connector.WithErrorSink(store),
		connector.WithTimeout(settings.Connector.Timeout),
		connector.WithRateLimiting(settings.Connector.RateLimitEnabled),
		connector.WithLogger(logger),
	)...)
	app.Executor = function.NewExecutor(app.Catalog, app.Connector, append(execOpts,
		function.WithRecorder(store),
		function.WithLogger(logger),
	)...)

	return app, nil
}

// WatchCatalog reloads the catalog on change when enabled in settings.
func (a *App) WatchCatalog(ctx context.Context) error {
	if !a.Settings.Catalog.Watch {
		return nil
	}
	return a.Catalog.Watch(ctx, a.Settings.Catalog.Path)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openBackend builds the configured storage. The redis backend keeps only
// rate-limit windows in redis; audit records go to sqlite.
func openBackend(ctx context.Context, cfg config.BackendConfig) (backend.Backend, error) {
	switch cfg.Type {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendSQLite:
		return openSQLite(cfg.SQLite)
	case config.BackendRedis:
		logs, err := openSQLite(cfg.SQLite)
		if err != nil {
			return nil, err
		}
		windows, err := redisbackend.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, redisbackend.WithPrefix(cfg.Redis.Prefix))
		if err != nil {
			logs.Close()
			return nil, err
		}
		return &splitBackend{Store: windows, logs: logs}, nil
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}

func openSQLite(cfg config.SQLiteConfig) (*sqlite.Backend, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return sqlite.New(sqlite.Config{Path: cfg.Path, WAL: cfg.WAL})
}

// splitBackend keeps rate-limit windows in one store and logs in another.
type splitBackend struct {
	*redisbackend.Store
	logs *sqlite.Backend
}

func (s *splitBackend) LogError(ctx context.Context, entry errorlog.Entry) error {
	return s.logs.LogError(ctx, entry)
}

func (s *splitBackend) RecentErrors(ctx context.Context, limit int) ([]errorlog.Entry, error) {
	return s.logs.RecentErrors(ctx, limit)
}

func (s *splitBackend) RecordCall(ctx context.Context, rec calllog.Record) error {
	return s.logs.RecordCall(ctx, rec)
}

func (s *splitBackend) RecentCalls(ctx context.Context, function string, limit int) ([]calllog.Record, error) {
	return s.logs.RecentCalls(ctx, function, limit)
}

func (s *splitBackend) Close() error {
	return errors.Join(s.Store.Close(), s.logs.Close())
}
