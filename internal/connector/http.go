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
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 30 * time.Second

// NewHTTPClient returns a pooled client for outbound calls. The client is
// owned by the Connector it is given to; nothing in this package shares a
// global client.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,

			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,

			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// JoinURL joins base and path with exactly one slash between them. Slashes
// inside path are left alone.
func JoinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// encodeQuery renders params as a query string. Lists repeat the key; nil
// values are skipped.
func encodeQuery(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	values := url.Values{}
	for key, v := range params {
		switch tv := v.(type) {
		case nil:
			continue
		case []any:
			for _, item := range tv {
				if item != nil {
					values.Add(key, queryValue(item))
				}
			}
		case []string:
			for _, item := range tv {
				values.Add(key, item)
			}
		default:
			values.Add(key, queryValue(v))
		}
	}
	return values.Encode()
}

func queryValue(v any) string {
	switch tv := v.(type) {
	case string:
		return tv
	case bool:
		return strconv.FormatBool(tv)
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64)
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case json.Number:
		return tv.String()
	case map[string]any:
		raw, err := json.Marshal(tv)
		if err != nil {
			return fmt.Sprint(tv)
		}
		return string(raw)
	default:
		return fmt.Sprint(tv)
	}
}

// decodeBody parses a response body as JSON, wrapping anything else as
// {"text": raw}.
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return map[string]any{"text": ""}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{"text": string(raw)}
	}
	return v
}

// flattenHeaders keeps the first value of each header.
func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for key, values := range h {
		if len(values) > 0 {
			out[key] = values[0]
		}
	}
	return out
}

// httpErrorText renders an HTTP failure the way operators read it in the
// error log.
func httpErrorText(status int, rawURL string) string {
	kind := "Client Error"
	if status >= 500 {
		kind = "Server Error"
	}
	return fmt.Sprintf("%d %s: %s for url: %s", status, kind, http.StatusText(status), rawURL)
}
