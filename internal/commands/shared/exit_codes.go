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
	"errors"
	"fmt"
	"os"

	"github.com/prakash09/api-connector/internal/config"
	"github.com/prakash09/api-connector/internal/connector"
	"github.com/prakash09/api-connector/internal/function"
)

// Exit codes for apihub commands
const (
	ExitSuccess          = 0
	ExitExecutionFailed  = 1
	ExitInvalidCatalog   = 2
	ExitInvalidArguments = 3
	ExitUpstreamFailed   = 4
	ExitRateLimited      = 5
	ExitConfigError      = 78 // EX_CONFIG from sysexits.h
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for failures inside apihub itself
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitExecutionFailed, Message: msg, Cause: cause}
}

// NewInvalidCatalogError creates an error for catalogs that fail to load
func NewInvalidCatalogError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidCatalog, Message: msg, Cause: cause}
}

// NewInvalidArgumentsError creates an error for bad function arguments
func NewInvalidArgumentsError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidArguments, Message: msg, Cause: cause}
}

// NewUpstreamError creates an error for failed upstream calls
func NewUpstreamError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUpstreamFailed, Message: msg, Cause: cause}
}

// ClassifyCallError maps an execution error to an exit error.
func ClassifyCallError(name string, err error) *ExitError {
	switch {
	case errors.Is(err, function.ErrFunctionNotFound):
		return &ExitError{Code: ExitInvalidArguments, Message: "unknown function " + name, Cause: err}
	case errors.Is(err, connector.ErrRateLimited):
		return &ExitError{Code: ExitRateLimited, Message: "rate limit reached", Cause: err}
	case errors.Is(err, config.ErrInvalidConfig):
		return &ExitError{Code: ExitConfigError, Message: "invalid configuration", Cause: err}
	default:
		return NewUpstreamError("call failed", err)
	}
}

// ClassifyValidationError maps an argument validation error to an exit error.
func ClassifyValidationError(name string, err error) *ExitError {
	if errors.Is(err, function.ErrFunctionNotFound) {
		return &ExitError{Code: ExitInvalidArguments, Message: "unknown function " + name, Cause: err}
	}
	return NewInvalidArgumentsError("invalid arguments for "+name, err)
}

// HandleExitError checks if an error is an ExitError and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "Error:", err.Error())

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		os.Exit(ExitConfigError)
	}
	os.Exit(ExitExecutionFailed)
}
