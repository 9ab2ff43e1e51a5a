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

// Request is the audit snapshot of an outbound request.
type Request struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Params  map[string]any    `json:"params,omitempty"`
	Data    map[string]any    `json:"data,omitempty"`
}

// Response is the audit snapshot of the last attempt of a call.
type Response struct {
	// StatusCode is 0 when no response was received.
	StatusCode      int               `json:"status_code"`
	Headers         map[string]string `json:"headers,omitempty"`
	Data            any               `json:"data,omitempty"`
	Elapsed         float64           `json:"elapsed"`
	MappedData      map[string]any    `json:"mapped_data,omitempty"`
	TransformedData any               `json:"transformed_data,omitempty"`
	Error           string            `json:"error,omitempty"`
	Attempts        int               `json:"attempts"`
}

// OK reports whether the call succeeded.
func (r *Response) OK() bool {
	return r != nil && r.Error == "" && r.StatusCode > 0 && r.StatusCode < 400
}

// Result is the value handed back to callers: the transformed data when a jq
// transform ran, else the mapped data when a mapping is declared, else the
// raw data.
func (r *Response) Result() any {
	if r == nil {
		return nil
	}
	if r.TransformedData != nil {
		return r.TransformedData
	}
	if r.MappedData != nil {
		return r.MappedData
	}
	return r.Data
}

// snapshot renders the request for the error log context.
func (r *Request) snapshot() map[string]any {
	if r == nil {
		return nil
	}
	return map[string]any{
		"url":     r.URL,
		"method":  r.Method,
		"headers": r.Headers,
		"params":  r.Params,
		"data":    r.Data,
	}
}

func (r *Response) snapshot() map[string]any {
	if r == nil {
		return nil
	}
	return map[string]any{
		"status_code": r.StatusCode,
		"headers":     r.Headers,
		"data":        r.Data,
		"elapsed":     r.Elapsed,
		"error":       r.Error,
		"attempts":    r.Attempts,
	}
}
