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

// Package server exposes the function executor over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/connector"
	"github.com/prakash09/api-connector/internal/errorlog"
	"github.com/prakash09/api-connector/internal/function"
	"github.com/prakash09/api-connector/internal/log"
	"github.com/prakash09/api-connector/internal/tracing"
)

// maxBodyBytes caps execute request bodies.
const maxBodyBytes = 1 << 20

// Executor is the function surface served over HTTP.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any) (*connector.Request, *connector.Response, error)
	Validate(ctx context.Context, name string, args map[string]any) error
	Tools(ctx context.Context) ([]function.Tool, error)
}

var _ Executor = (*function.Executor)(nil)

// Options configures the handler.
type Options struct {
	Logger *slog.Logger

	// IngressRate is requests per second accepted on /v1; zero disables the
	// throttle.
	IngressRate  float64
	IngressBurst int

	// Metrics serves /metrics (default: promhttp.Handler()).
	Metrics http.Handler

	// Errors and Calls back the read-only log endpoints when set.
	Errors errorlog.Lister
	Calls  calllog.Lister
}

type handler struct {
	exec   Executor
	opts   Options
	logger *slog.Logger
}

// ExecuteRequest is the body of POST /v1/functions/{name}/execute.
type ExecuteRequest struct {
	Arguments map[string]any `json:"arguments"`
}

// ExecuteResponse reports one execution.
type ExecuteResponse struct {
	Function string              `json:"function"`
	Status   calllog.Status      `json:"status"`
	Result   any                 `json:"result,omitempty"`
	Error    string              `json:"error,omitempty"`
	Request  *connector.Request  `json:"request,omitempty"`
	Response *connector.Response `json:"response,omitempty"`
}

// NewHandler builds the HTTP API.
func NewHandler(exec Executor, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{exec: exec, opts: opts, logger: log.WithComponent(logger, "server")}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(log.Middleware(h.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics)

	r.Route("/v1", func(r chi.Router) {
		if opts.IngressRate > 0 {
			r.Use(throttle(rate.NewLimiter(rate.Limit(opts.IngressRate), max(opts.IngressBurst, 1))))
		}
		r.With(tracing.HTTPMiddleware("list_functions")).Get("/functions", h.listFunctions)
		r.With(tracing.HTTPMiddleware("execute_function")).Post("/functions/{name}/execute", h.execute)
		if opts.Errors != nil {
			r.Get("/errors", h.listErrors)
		}
		if opts.Calls != nil {
			r.Get("/calls", h.listCalls)
		}
	})

	return r
}

// throttle rejects requests beyond the limiter's rate with 429.
func throttle(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *handler) listFunctions(w http.ResponseWriter, r *http.Request) {
	tools, err := h.exec.Tools(r.Context())
	if err != nil {
		h.logger.Error("failed to list functions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list functions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"functions": tools})
}

// execute validates the arguments, runs the function and maps the outcome to
// a status code: 200 success, 400 invalid arguments, 404 unknown function,
// 429 rate limited, 502 for upstream HTTP or transport failures.
func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var body ExecuteRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.Arguments == nil {
		body.Arguments = map[string]any{}
	}

	if err := h.exec.Validate(r.Context(), name, body.Arguments); err != nil {
		if errors.Is(err, function.ErrFunctionNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid arguments: "+err.Error())
		return
	}

	req, resp, err := h.exec.Execute(r.Context(), name, body.Arguments)
	out := ExecuteResponse{Function: name, Status: calllog.StatusSuccess, Request: req, Response: resp}

	switch {
	case errors.Is(err, function.ErrFunctionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, connector.ErrRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, err.Error())
	case err != nil:
		out.Status = calllog.StatusFailed
		out.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, out)
	case !resp.OK():
		out.Status = calllog.StatusFailed
		out.Error = resp.Error
		writeJSON(w, http.StatusBadGateway, out)
	default:
		out.Result = resp.Result()
		writeJSON(w, http.StatusOK, out)
	}
}

func (h *handler) listErrors(w http.ResponseWriter, r *http.Request) {
	entries, err := h.opts.Errors.RecentErrors(r.Context(), queryLimit(r))
	if err != nil {
		h.logger.Error("failed to list error log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list error log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": entries})
}

func (h *handler) listCalls(w http.ResponseWriter, r *http.Request) {
	records, err := h.opts.Calls.RecentCalls(r.Context(), r.URL.Query().Get("function"), queryLimit(r))
	if err != nil {
		h.logger.Error("failed to list call log", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list call log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"calls": records})
}

// queryLimit reads ?limit=, defaulting to 50 and capped at 1000.
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return 50
	}
	return min(limit, 1000)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
