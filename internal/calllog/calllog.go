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

// Package calllog defines the audit record written for every function
// execution.
package calllog

import (
	"context"
	"time"
)

// Status of a recorded call.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Record is one function execution.
type Record struct {
	ID         string         `json:"id"`
	Function   string         `json:"function"`
	Arguments  map[string]any `json:"arguments"`
	Status     Status         `json:"status"`
	StatusCode int            `json:"status_code"`
	Result     map[string]any `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
	Duration   time.Duration  `json:"duration"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Recorder persists call records.
type Recorder interface {
	RecordCall(ctx context.Context, rec Record) error
}

// Lister reads records back, newest first. An empty function name lists all.
type Lister interface {
	RecentCalls(ctx context.Context, function string, limit int) ([]Record, error)
}
