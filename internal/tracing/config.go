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

package tracing

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
)

// Exporter types.
const (
	ExporterNone     = "none"
	ExporterConsole  = "console"
	ExporterOTLP     = "otlp"
	ExporterOTLPHTTP = "otlp-http"
)

// Config holds observability configuration.
type Config struct {
	// ServiceName identifies this service in traces.
	ServiceName string

	// ServiceVersion is the application version.
	ServiceVersion string

	// Exporter selects where spans go: none, console, otlp (gRPC) or otlp-http.
	Exporter string

	// Endpoint is the OTLP receiver address.
	Endpoint string

	// Insecure disables TLS for OTLP exporters.
	Insecure bool

	// Headers are sent with each OTLP export request.
	Headers map[string]string

	// SampleRate is the fraction of root traces recorded (0.0 - 1.0).
	SampleRate float64

	// Writer receives console exporter output (default: os.Stdout).
	Writer io.Writer

	// Registerer receives the OpenTelemetry metrics collector (default:
	// prometheus.DefaultRegisterer, which /metrics serves).
	Registerer prometheus.Registerer
}
