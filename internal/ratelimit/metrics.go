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

package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	decisionAdmitted = "admitted"
	decisionRejected = "rejected"
	decisionError    = "error"
)

var (
	// rateLimitDecisions tracks admission decisions
	rateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apihub_ratelimit_decisions_total",
			Help: "Total rate limit decisions by target type and outcome",
		},
		[]string{"target_type", "decision"},
	)
)

// recordDecision increments the decision counter
func recordDecision(targetType, decision string) {
	rateLimitDecisions.WithLabelValues(targetType, decision).Inc()
}
