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

package connector

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess     = "success"
	outcomeHTTPError   = "http_error"
	outcomeTransport   = "transport_error"
	outcomeRateLimited = "rate_limited"
)

var (
	// connectorRequests counts calls by terminal outcome
	connectorRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apihub_connector_requests_total",
			Help: "Total outbound API calls by API, endpoint and outcome",
		},
		[]string{"api", "endpoint", "outcome"},
	)

	// connectorDuration tracks wall time of a whole call including retries
	connectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apihub_connector_request_duration_seconds",
			Help:    "Outbound API call duration in seconds, including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"api", "endpoint"},
	)

	// connectorRetries counts retry attempts
	connectorRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apihub_connector_retries_total",
			Help: "Total retry attempts by API and endpoint",
		},
		[]string{"api", "endpoint"},
	)

	// connectorResponses counts individual attempts by status code class
	connectorResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apihub_connector_responses_total",
			Help: "Total HTTP responses by API and status class",
		},
		[]string{"api", "status_class"},
	)
)

// recordCall records the terminal outcome and duration of a call.
func recordCall(api, endpoint, outcome string, duration time.Duration) {
	connectorRequests.WithLabelValues(api, endpoint, outcome).Inc()
	if outcome != outcomeRateLimited {
		connectorDuration.WithLabelValues(api, endpoint).Observe(duration.Seconds())
	}
}

// recordRetry increments the retry counter.
func recordRetry(api, endpoint string) {
	connectorRetries.WithLabelValues(api, endpoint).Inc()
}

// recordResponse records one attempt's status code.
func recordResponse(api string, status int) {
	connectorResponses.WithLabelValues(api, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status <= 0:
		return "none"
	case status < 200:
		return "1xx"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
