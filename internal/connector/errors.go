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
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorType classifies connector failures.
type ErrorType string

const (
	// ErrorTypeRateLimit indicates the call was rejected by the rate limiter
	// before any network attempt.
	ErrorTypeRateLimit ErrorType = "rate_limited"

	// ErrorTypeTransport indicates no response was received (DNS, connection
	// refused, timeout).
	ErrorTypeTransport ErrorType = "transport_error"

	// ErrorTypeTimeout indicates the per-attempt timeout elapsed.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeConfig indicates an unusable endpoint definition.
	ErrorTypeConfig ErrorType = "config_error"
)

// ErrRateLimited matches any rate-limit rejection via errors.Is.
var ErrRateLimited = errors.New("rate limit exceeded")

// Error is a connector failure that never produced an HTTP response.
type Error struct {
	// Type classifies the error
	Type ErrorType

	// Message is the human-readable error description
	Message string

	// StatusCode is always 0 for connector errors; kept for callers that
	// render a status.
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("ConnectorError: %s", e.Message)
	if e.Type != "" {
		msg = fmt.Sprintf("%s (type: %s)", msg, e.Type)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches ErrRateLimited for rate-limit errors.
func (e *Error) Is(target error) bool {
	return target == ErrRateLimited && e.Type == ErrorTypeRateLimit
}

// IsRetryable returns true if a new call could succeed without any change.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTransport, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// IsTransportFailure reports whether err is a connector error for a call that
// never produced a response.
func IsTransportFailure(err error) bool {
	var cerr *Error
	if !errors.As(err, &cerr) {
		return false
	}
	return cerr.Type == ErrorTypeTransport || cerr.Type == ErrorTypeTimeout
}

// classifyTransportError maps a client error to an ErrorType.
func classifyTransportError(err error) ErrorType {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrorTypeTimeout
	}
	return ErrorTypeTransport
}
