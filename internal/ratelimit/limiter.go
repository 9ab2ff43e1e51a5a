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
	"context"
	"log/slog"
	"time"

	"github.com/prakash09/api-connector/internal/log"
)

// Limiter applies fixed-window limits against a Store.
type Limiter struct {
	store  Store
	logger *slog.Logger
}

// New creates a limiter.
func New(store Store, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{store: store, logger: log.WithComponent(logger, "rate_limiter")}
}

// Admit reports whether a call against target may proceed at now. Storage
// failures admit the call.
func (l *Limiter) Admit(ctx context.Context, targetType, targetID, limitSpec string, now time.Time) bool {
	spec := l.parse(targetType, targetID, limitSpec)
	start, end := Window(spec, now)
	key := WindowKey{TargetType: targetType, TargetID: targetID, Start: start}

	admitted, count, err := l.store.Increment(ctx, key, spec.Limit, end, now)
	if err != nil {
		recordDecision(targetType, decisionError)
		l.logger.Error("rate limit check failed, admitting call",
			"target_type", targetType,
			"target_id", targetID,
			"error", err)
		return true
	}

	if !admitted {
		recordDecision(targetType, decisionRejected)
		l.logger.Warn("rate limit exceeded",
			"target_type", targetType,
			"target_id", targetID,
			"limit", spec.String(),
			"window_start", start)
		return false
	}

	recordDecision(targetType, decisionAdmitted)
	log.Trace(ctx, l.logger, "rate limit admitted",
		slog.String("target_type", targetType),
		slog.String("target_id", targetID),
		slog.Int("count", count),
		slog.Int("limit", spec.Limit))
	return true
}

// Usage describes the current window of a target.
type Usage struct {
	Spec        Spec      `json:"-"`
	Limit       string    `json:"limit"`
	Count       int       `json:"count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// Usage reports the count of the window containing now.
func (l *Limiter) Usage(ctx context.Context, targetType, targetID, limitSpec string, now time.Time) (Usage, error) {
	spec := l.parse(targetType, targetID, limitSpec)
	start, end := Window(spec, now)

	count, err := l.store.Count(ctx, WindowKey{TargetType: targetType, TargetID: targetID, Start: start})
	if err != nil {
		return Usage{}, err
	}
	return Usage{Spec: spec, Limit: spec.String(), Count: count, WindowStart: start, WindowEnd: end}, nil
}

func (l *Limiter) parse(targetType, targetID, limitSpec string) Spec {
	spec, err := ParseSpecOrDefault(limitSpec)
	if err != nil {
		l.logger.Warn("invalid rate limit, using default",
			"target_type", targetType,
			"target_id", targetID,
			"rate_limit", limitSpec,
			"default", DefaultSpec.String())
	}
	return spec
}
