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

package function

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const statusNotFound = "not_found"

// metrics records executions through the OpenTelemetry meter API. With the
// tracing package's provider installed they are exported on /metrics.
type metrics struct {
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

func newMetrics(mp metric.MeterProvider, logger *slog.Logger) *metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(tracerName)

	executions, err := meter.Int64Counter(
		"apihub_function_executions_total",
		metric.WithDescription("Total function executions by name and status"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		logger.Warn("function execution counter unavailable", "error", err)
		executions, _ = noop.NewMeterProvider().Meter(tracerName).Int64Counter("noop")
	}

	duration, err := meter.Float64Histogram(
		"apihub_function_execution_duration_seconds",
		metric.WithDescription("Function execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		logger.Warn("function duration histogram unavailable", "error", err)
		duration, _ = noop.NewMeterProvider().Meter(tracerName).Float64Histogram("noop")
	}

	return &metrics{executions: executions, duration: duration}
}

func (m *metrics) record(ctx context.Context, name, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("function", name),
		attribute.String("status", status),
	)
	m.executions.Add(ctx, 1, attrs)
	if status != statusNotFound {
		m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("function", name)))
	}
}
