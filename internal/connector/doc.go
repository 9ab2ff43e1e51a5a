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

/*
Package connector executes outbound HTTP calls described by catalog endpoints.

A call runs through a fixed sequence:

  - the owning API's rate limit is checked (target type "api_config")
  - the URL is built by joining the API base URL and the endpoint path
  - headers are merged: API defaults, endpoint headers, caller headers, then
    auth headers, each layer overriding the previous one
  - the request body template, when configured, is filled from call data
  - the request is sent up to MaxRetries+1 times with backoff between attempts
  - a successful response is mapped and optionally transformed with jq

HTTP failures are returned as data: the Response carries the status code and
an error string and a nil error is returned. Only rate-limit rejections and
transport failures that never produced a response surface as *Error values.

# Audit snapshots

Request and Response are the literal audit trail of a call. Their JSON
encoding is stored verbatim by the error log and call log, so header values are
not redacted in the snapshots. Log lines go through log.SanitizeHeaders.
*/
package connector
