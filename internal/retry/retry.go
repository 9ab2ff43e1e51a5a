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

// Package retry decides whether a failed outbound attempt is retried and how
// long to wait before the next one.
package retry

import (
	"context"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// BaseDelay is the exponential backoff unit.
	BaseDelay = 500 * time.Millisecond

	// MaxDelay caps exponential backoff before jitter is applied.
	MaxDelay = 60 * time.Second

	// JitterFraction is the +/- multiplicative jitter applied to exponential delays.
	JitterFraction = 0.25

	// LinearStep is the delay added per attempt when exponential backoff is off.
	LinearStep = time.Second
)

// retryableStatus lists response codes that are worth another attempt.
var retryableStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// RetryableStatus reports whether a response status is retried.
func RetryableStatus(code int) bool {
	return retryableStatus[code]
}

// Policy is the per-API retry configuration.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Exponential selects exponential backoff with jitter instead of linear.
	Exponential bool
}

// Attempts returns the total number of attempts the policy allows.
func (p Policy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// ShouldRetry reports whether retry number `retry` (1-based) may run after an
// attempt that ended with the given status or transport error.
func (p Policy) ShouldRetry(retry int, status int, transportErr error) bool {
	if retry > p.MaxRetries {
		return false
	}
	if transportErr != nil {
		return true
	}
	return RetryableStatus(status)
}

// Backoff computes retry delays.
type Backoff struct {
	// Rand returns a uniform value in [0, 1). Defaults to math/rand.
	Rand func() float64
}

// NextDelay computes the wait before retry number `attempt`.
//
// A numeric Retry-After value (in seconds) is used verbatim. Otherwise the
// delay is min(MaxDelay, 2^attempt * BaseDelay) scaled by a random factor in
// [0.75, 1.25] when exponential, or attempt seconds when linear.
func (b Backoff) NextDelay(attempt int, exponential bool, retryAfter string) time.Duration {
	if d, ok := ParseRetryAfter(retryAfter); ok {
		return d
	}

	if !exponential {
		return time.Duration(attempt) * LinearStep
	}

	delay := math.Min(float64(MaxDelay), math.Pow(2, float64(attempt))*float64(BaseDelay))

	r := rand.Float64
	if b.Rand != nil {
		r = b.Rand
	}
	jitter := (r()*2 - 1) * JitterFraction

	return time.Duration(delay * (1 + jitter))
}

// NextDelay uses the default jitter source.
func NextDelay(attempt int, exponential bool, retryAfter string) time.Duration {
	return Backoff{}.NextDelay(attempt, exponential, retryAfter)
}

// ParseRetryAfter parses a Retry-After value given in (possibly fractional)
// seconds. HTTP-date values are not honoured and fall back to the policy.
func ParseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
