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

// Package function dispatches named function calls, as chosen by an upstream
// model, to catalog endpoints through the connector.
package function

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/connector"
	"github.com/prakash09/api-connector/internal/log"
	"github.com/prakash09/api-connector/internal/mapping"
)

const tracerName = "github.com/prakash09/api-connector/internal/function"

// ErrFunctionNotFound is returned when a name does not resolve to an active
// function.
var ErrFunctionNotFound = errors.New("function not found")

// Caller performs the outbound call for a resolved endpoint.
type Caller interface {
	Call(ctx context.Context, ep *catalog.Endpoint, data, params mapping.Object, headers map[string]string) (*connector.Request, *connector.Response, error)
}

var _ Caller = (*connector.Connector)(nil)

// Executor resolves function names and delegates to a Caller.
type Executor struct {
	store    catalog.Store
	caller   Caller
	recorder calllog.Recorder
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *metrics
	meters   metric.MeterProvider
	now      func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithRecorder records every execution in the call log.
func WithRecorder(r calllog.Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) { e.logger = logger }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer(tracerName) }
}

// WithMeterProvider sets the provider execution metrics are recorded with.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Executor) { e.meters = mp }
}

// WithClock overrides the time source for call log timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor reading functions from store.
func NewExecutor(store catalog.Store, caller Caller, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		caller: caller,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.logger = log.WithComponent(e.logger, "function_executor")
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	e.metrics = newMetrics(e.meters, e.logger)
	return e
}

// Lookup returns the callable function named name.
func (e *Executor) Lookup(ctx context.Context, name string) (*catalog.Function, error) {
	fn, err := e.store.Function(ctx, name)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
		}
		return nil, fmt.Errorf("resolve function %s: %w", name, err)
	}
	if !fn.Callable() {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return fn, nil
}

// Validate checks args against the function's parameters schema. Execute does
// not validate; callers at the process boundary do.
func (e *Executor) Validate(ctx context.Context, name string, args map[string]any) error {
	fn, err := e.Lookup(ctx, name)
	if err != nil {
		return err
	}
	return fn.ValidateArguments(args)
}

// Execute maps args through the function's parameter mapping and calls its
// endpoint. Arguments go out as query parameters for GET endpoints and as body
// data otherwise. ErrFunctionNotFound is returned for unknown or inactive
// names and is not written to the error log.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (*connector.Request, *connector.Response, error) {
	ctx, span := e.tracer.Start(ctx, "function.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("apihub.function", name)),
	)
	defer span.End()

	logger := log.WithFunction(e.logger, name)

	fn, err := e.Lookup(ctx, name)
	if err != nil {
		e.metrics.record(ctx, name, statusNotFound, 0)
		span.SetStatus(codes.Error, "function not found")
		span.RecordError(err)
		logger.Warn("function not found")
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("apihub.endpoint.id", fn.Endpoint.ID))

	mapped := mapping.Map(fn.ParameterMapping, args)

	var data, params mapping.Object
	if fn.Endpoint.Method == http.MethodGet {
		params = mapped
	} else {
		data = mapped
	}

	started := e.now()
	req, resp, err := e.caller.Call(ctx, fn.Endpoint, data, params, nil)
	duration := e.now().Sub(started)

	rec := calllog.Record{
		ID:        uuid.New().String(),
		Function:  name,
		Arguments: args,
		Status:    calllog.StatusSuccess,
		Duration:  duration,
		CreatedAt: started.UTC(),
	}
	if resp != nil {
		rec.StatusCode = resp.StatusCode
		if result, ok := resp.Result().(map[string]any); ok {
			rec.Result = result
		}
	}

	switch {
	case err != nil:
		rec.Status = calllog.StatusFailed
		rec.Error = err.Error()
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	case !resp.OK():
		rec.Status = calllog.StatusFailed
		rec.Error = resp.Error
		span.SetStatus(codes.Error, resp.Error)
	default:
		span.SetStatus(codes.Ok, "")
	}

	e.metrics.record(ctx, name, string(rec.Status), duration)
	e.recordCall(ctx, logger, rec)

	logger.Info("function executed",
		"status", rec.Status,
		"status_code", rec.StatusCode,
		log.DurationKey, duration.Milliseconds())

	return req, resp, err
}

// recordCall writes rec to the call log; failures are logged and dropped.
func (e *Executor) recordCall(ctx context.Context, logger *slog.Logger, rec calllog.Record) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordCall(context.WithoutCancel(ctx), rec); err != nil {
		logger.Error("failed to write call log", "error", err)
	}
}
