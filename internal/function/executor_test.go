package function_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/prakash09/api-connector/internal/backend/memory"
	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/connector"
	"github.com/prakash09/api-connector/internal/function"
	"github.com/prakash09/api-connector/internal/log"
)

const issuesCatalog = `
apis:
  - id: tracker
    name: Tracker
    base_url: BASE_URL
    max_retries: 0
    endpoints:
      - name: list_issues
        path: /issues
        method: GET
      - name: close_issue
        path: /issues/close
        method: POST
  - id: legacy
    name: Legacy
    base_url: BASE_URL
    active: false
    endpoints:
      - name: ping
        path: /ping
functions:
  - name: list_issues
    description: List issues
    api: tracker
    endpoint: list_issues
    parameters_schema:
      type: object
      properties:
        state: {type: string, enum: [open, closed]}
      required: [state]
    parameter_mapping:
      status: state
  - name: close_issue
    description: Close an issue
    api: tracker
    endpoint: close_issue
  - name: retired
    description: No longer offered
    api: tracker
    endpoint: list_issues
    active: false
  - name: ping_legacy
    description: Endpoint on an inactive API
    api: legacy
    endpoint: ping
`

func buildCatalog(t *testing.T, doc, baseURL string) *catalog.Snapshot {
	t.Helper()
	parsed, err := catalog.Parse([]byte(strings.ReplaceAll(doc, "BASE_URL", baseURL)), false)
	require.NoError(t, err)
	snap, err := catalog.Build(parsed)
	require.NoError(t, err)
	return snap
}

func newExecutor(t *testing.T, snap catalog.Store, opts ...function.Option) (*function.Executor, *memory.Backend) {
	t.Helper()
	backend := memory.New()
	conn := connector.New(
		connector.WithErrorSink(backend),
		connector.WithSleep(func(context.Context, time.Duration) error { return nil }),
		connector.WithLogger(log.Discard()),
	)
	base := []function.Option{function.WithRecorder(backend), function.WithLogger(log.Discard())}
	return function.NewExecutor(snap, conn, append(base, opts...)...), backend
}

func TestExecute_CreateLinearIssue(t *testing.T) {
	t.Setenv("LINEAR_API_KEY", "lin_test")

	var body map[string]any
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphql", r.URL.Path)
		authHeader = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"issueCreate":{"issue":{"id":"42"}}}}`))
	}))
	defer srv.Close()

	raw, err := os.ReadFile("../catalog/testdata/linear.yaml")
	require.NoError(t, err)
	snap := buildCatalog(t, strings.ReplaceAll(string(raw), "https://api.linear.app", "BASE_URL"), srv.URL)

	exec, backend := newExecutor(t, snap)
	_, resp, err := exec.Execute(context.Background(), "create_linear_issue", map[string]any{
		"title":       "Bug",
		"description": "Crash on save",
		"priority":    "high",
	})
	require.NoError(t, err)

	assert.Equal(t, "lin_test", authHeader)
	vars, ok := body["variables"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Bug", vars["title"])
	assert.Equal(t, float64(2), vars["priority"])
	assert.Equal(t, "Crash on save", vars["description"])
	assert.Equal(t, "team-eng-id-here", vars["teamId"])
	assert.Equal(t, []any{}, vars["labelIds"], "unmapped template slots keep their defaults")
	assert.NotContains(t, body, "title", "pass-through keys outside the template are dropped")
	assert.Contains(t, body["query"], "mutation CreateIssue")

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]any{"issue_id": "42"}, resp.MappedData)

	calls, err := backend.RecentCalls(context.Background(), "create_linear_issue", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, calllog.StatusSuccess, calls[0].Status)
	assert.Equal(t, http.StatusCreated, calls[0].StatusCode)
	assert.Equal(t, map[string]any{"issue_id": "42"}, calls[0].Result)
	assert.NotEmpty(t, calls[0].ID)
}

func TestExecute_GetSendsQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		assert.Equal(t, "open", r.URL.Query().Get("state"), "unmapped arguments pass through")
		_, _ = w.Write([]byte(`[{"id":1}]`))
	}))
	defer srv.Close()

	exec, _ := newExecutor(t, buildCatalog(t, issuesCatalog, srv.URL))
	req, resp, err := exec.Execute(context.Background(), "list_issues", map[string]any{"state": "open"})
	require.NoError(t, err)
	assert.Nil(t, req.Data)
	assert.Equal(t, map[string]any{"status": "open", "state": "open"}, req.Params)
	assert.Equal(t, []any{map[string]any{"id": float64(1)}}, resp.Data)
}

func TestExecute_PostSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]any{"id": float64(9)}, body)
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"closed":true}`))
	}))
	defer srv.Close()

	exec, _ := newExecutor(t, buildCatalog(t, issuesCatalog, srv.URL))
	req, _, err := exec.Execute(context.Background(), "close_issue", map[string]any{"id": 9})
	require.NoError(t, err)
	assert.Nil(t, req.Params)
	assert.Equal(t, map[string]any{"id": 9}, req.Data)
}

func TestExecute_NotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	exec, backend := newExecutor(t, buildCatalog(t, issuesCatalog, srv.URL))
	for _, name := range []string{"missing", "retired", "ping_legacy"} {
		req, resp, err := exec.Execute(context.Background(), name, nil)
		assert.True(t, errors.Is(err, function.ErrFunctionNotFound), name)
		assert.Nil(t, req)
		assert.Nil(t, resp)
	}
	assert.Equal(t, int32(0), hits.Load())

	entries, err := backend.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries, "unknown functions are not operator errors")
}

func TestExecute_FailureRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad state"}`))
	}))
	defer srv.Close()

	exec, backend := newExecutor(t, buildCatalog(t, issuesCatalog, srv.URL))
	_, resp, err := exec.Execute(context.Background(), "list_issues", map[string]any{"state": "open"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	calls, err := backend.RecentCalls(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, calllog.StatusFailed, calls[0].Status)
	assert.Contains(t, calls[0].Error, "400")

	entries, err := backend.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestTools(t *testing.T) {
	exec, _ := newExecutor(t, buildCatalog(t, issuesCatalog, "https://tracker.example.com"))
	tools, err := exec.Tools(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"close_issue", "list_issues"}, names)

	assert.Equal(t, "object", tools[0].Parameters["type"], "functions without a schema get an empty object schema")
	assert.Equal(t, "List issues", tools[1].Description)
	assert.Equal(t, []any{"state"}, tools[1].Parameters["required"])
}

func TestValidate(t *testing.T) {
	exec, _ := newExecutor(t, buildCatalog(t, issuesCatalog, "https://tracker.example.com"))
	ctx := context.Background()

	assert.NoError(t, exec.Validate(ctx, "list_issues", map[string]any{"state": "open"}))
	assert.Error(t, exec.Validate(ctx, "list_issues", map[string]any{}))
	assert.Error(t, exec.Validate(ctx, "list_issues", map[string]any{"state": "pending"}))
	assert.True(t, errors.Is(exec.Validate(ctx, "retired", nil), function.ErrFunctionNotFound))
}

func TestExecute_Telemetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	exec, _ := newExecutor(t, buildCatalog(t, issuesCatalog, srv.URL),
		function.WithTracerProvider(tp),
		function.WithMeterProvider(mp),
	)
	ctx := context.Background()
	_, _, err := exec.Execute(ctx, "list_issues", map[string]any{"state": "open"})
	require.NoError(t, err)
	_, _, err = exec.Execute(ctx, "missing", nil)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "function.execute", spans[0].Name())

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "apihub_function_executions_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}
