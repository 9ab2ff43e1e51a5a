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

// Package backend defines the storage interfaces shared by apihub's
// persistence implementations.
//
// Backends implement segregated interfaces:
//   - ratelimit.Store (required): Increment, Count
//   - errorlog.Sink and errorlog.Lister (optional): LogError, RecentErrors
//   - calllog.Recorder and calllog.Lister (optional): RecordCall, RecentCalls
//   - io.Closer
//
// The redis backend only carries rate-limit counters; callers pair it with
// another backend or a log-only sink for audit records.
package backend

import (
	"io"

	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/errorlog"
	"github.com/prakash09/api-connector/internal/ratelimit"
)

// Backend composes every storage capability.
type Backend interface {
	ratelimit.Store
	errorlog.Sink
	errorlog.Lister
	calllog.Recorder
	calllog.Lister
	io.Closer
}
