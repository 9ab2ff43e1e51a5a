package connector_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/prakash09/api-connector/internal/auth"
	"github.com/prakash09/api-connector/internal/backend/memory"
	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/connector"
	"github.com/prakash09/api-connector/internal/jq"
	"github.com/prakash09/api-connector/internal/log"
	"github.com/prakash09/api-connector/internal/ratelimit"
)

// delays records requested sleeps without waiting.
type delays struct {
	got []time.Duration
}

func (d *delays) sleep(_ context.Context, dur time.Duration) error {
	d.got = append(d.got, dur)
	return nil
}

func testEndpoint(baseURL string) *catalog.Endpoint {
	api := &catalog.API{
		ID:             "linear",
		Name:           "Linear API",
		BaseURL:        baseURL + "/",
		MaxRetries:     2,
		RetryBackoff:   true,
		DefaultHeaders: map[string]string{"Content-Type": "application/json", "X-Source": "api"},
		Active:         true,
	}
	return &catalog.Endpoint{
		ID:     "linear/create_issue",
		Name:   "create_issue",
		API:    api,
		Path:   "/graphql",
		Method: "POST",
		RequestBodyTemplate: map[string]any{
			"query": "mutation CreateIssue { issueCreate }",
			"variables": map[string]any{
				"title":    "",
				"priority": 0,
			},
		},
		Headers:         map[string]string{"X-Source": "endpoint"},
		ResponseMapping: map[string]string{"issue_id": "data.issueCreate.issue.id"},
		Active:          true,
	}
}

func newConnector(t *testing.T, opts ...connector.Option) (*connector.Connector, *memory.Backend, *delays) {
	t.Helper()
	backend := memory.New()
	d := &delays{}
	base := []connector.Option{
		connector.WithErrorSink(backend),
		connector.WithSleep(d.sleep),
		connector.WithLogger(log.Discard()),
	}
	return connector.New(append(base, opts...)...), backend, d
}

func TestCall_FillsTemplateAndMapsResponse(t *testing.T) {
	var body map[string]any
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/graphql", r.URL.Path)
		gotHeaders = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"issueCreate":{"issue":{"id":"42"}}}}`))
	}))
	defer srv.Close()

	ep := testEndpoint(srv.URL)
	ep.API.Auth = &auth.Config{ID: "k", Type: auth.TypeAPIKey, APIKey: "secret", APIKeyName: "Authorization"}

	c, backend, _ := newConnector(t)
	data := map[string]any{
		"variables": map[string]any{"title": "Bug", "priority": 2, "extra": true},
		"dropped":   "x",
	}
	req, resp, err := c.Call(context.Background(), ep, data, nil, map[string]string{
		"Authorization": "caller",
		"X-Caller":      "yes",
	})
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/graphql", req.URL)
	assert.Equal(t, "secret", req.Headers["Authorization"], "auth headers win")
	assert.Equal(t, "endpoint", req.Headers["X-Source"])
	assert.Equal(t, "yes", gotHeaders.Get("X-Caller"))
	assert.Equal(t, "secret", gotHeaders.Get("Authorization"))

	assert.Equal(t, "mutation CreateIssue { issueCreate }", body["query"])
	assert.Equal(t, map[string]any{"title": "Bug", "priority": float64(2)}, body["variables"])
	assert.NotContains(t, body, "dropped")

	assert.True(t, resp.OK())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, resp.Attempts)
	assert.Equal(t, map[string]any{"issue_id": "42"}, resp.MappedData)
	assert.Equal(t, map[string]any{"issue_id": "42"}, resp.Result())

	entries, err := backend.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCall_RetriesUntilExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down for maintenance"))
	}))
	defer srv.Close()

	c, backend, d := newConnector(t)
	ep := testEndpoint(srv.URL)

	req, resp, err := c.Call(context.Background(), ep, map[string]any{}, nil, nil)
	require.NoError(t, err, "HTTP failures are returned as data")
	require.NotNil(t, req)

	assert.Equal(t, int32(3), hits.Load())
	assert.Len(t, d.got, 2)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 3, resp.Attempts)
	assert.False(t, resp.OK())
	assert.Contains(t, resp.Error, "503")
	assert.Equal(t, map[string]any{"text": "down for maintenance"}, resp.Data)

	entries, err := backend.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, connector.Component, entry.Component)
	assert.Equal(t, connector.RelatedType, entry.RelatedType)
	assert.Equal(t, "linear/create_issue", entry.RelatedID)
	assert.Contains(t, entry.Message, "API Error: Linear API - create_issue: 503")
	assert.Equal(t, "linear", entry.Context["api_config_id"])
	assert.NotNil(t, entry.Context["request"])
	assert.NotNil(t, entry.Context["response"])
}

func TestCall_ExponentialDelaysWithinBounds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _, d := newConnector(t)
	_, _, err := c.Call(context.Background(), testEndpoint(srv.URL), nil, nil, nil)
	require.NoError(t, err)

	require.Len(t, d.got, 2)
	assert.GreaterOrEqual(t, d.got[0], 750*time.Millisecond)
	assert.LessOrEqual(t, d.got[0], 1250*time.Millisecond)
	assert.GreaterOrEqual(t, d.got[1], 1500*time.Millisecond)
	assert.LessOrEqual(t, d.got[1], 2500*time.Millisecond)
}

func TestCall_NonRetryableStatusStops(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"no such team"}`))
	}))
	defer srv.Close()

	c, backend, d := newConnector(t)
	_, resp, err := c.Call(context.Background(), testEndpoint(srv.URL), nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, d.got)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, map[string]any{"message": "no such team"}, resp.Data)
	assert.Nil(t, resp.MappedData)

	entries, err := backend.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCall_RetryAfterOverridesBackoff(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "10")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"issueCreate":{"issue":{"id":"7"}}}}`))
	}))
	defer srv.Close()

	c, backend, d := newConnector(t)
	_, resp, err := c.Call(context.Background(), testEndpoint(srv.URL), nil, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{10 * time.Second}, d.got)
	assert.Equal(t, 2, resp.Attempts)
	assert.Equal(t, map[string]any{"issue_id": "7"}, resp.MappedData)

	entries, err := backend.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCall_LinearBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _, d := newConnector(t)
	ep := testEndpoint(srv.URL)
	ep.API.RetryBackoff = false
	ep.API.MaxRetries = 3

	_, resp, err := c.Call(context.Background(), ep, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, d.got)
}

func TestCall_RateLimited(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	store := memory.New()
	now := time.Date(2025, 3, 1, 10, 0, 5, 0, time.UTC)
	c, _, _ := newConnector(t,
		connector.WithLimiter(ratelimit.New(store, log.Discard())),
		connector.WithClock(func() time.Time { return now }),
	)
	ep := testEndpoint(srv.URL)
	ep.API.RateLimitEnabled = true
	ep.API.RateLimit = "1/minute"

	_, _, err := c.Call(context.Background(), ep, nil, nil, nil)
	require.NoError(t, err)

	req, resp, err := c.Call(context.Background(), ep, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, connector.ErrRateLimited))
	assert.Nil(t, req)
	assert.Nil(t, resp)
	assert.Equal(t, int32(1), hits.Load(), "rejected call makes no network attempt")

	var cerr *connector.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, connector.ErrorTypeRateLimit, cerr.Type)
	assert.False(t, cerr.IsRetryable())

	now = now.Add(time.Minute)
	_, _, err = c.Call(context.Background(), ep, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestCall_GlobalRateLimitSwitch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _, _ := newConnector(t,
		connector.WithLimiter(ratelimit.New(memory.New(), log.Discard())),
		connector.WithRateLimiting(false),
	)
	ep := testEndpoint(srv.URL)
	ep.API.RateLimitEnabled = true
	ep.API.RateLimit = "1/hour"

	for i := 0; i < 3; i++ {
		_, _, err := c.Call(context.Background(), ep, nil, nil, nil)
		require.NoError(t, err)
	}
}

func TestCall_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c, backend, d := newConnector(t)
	ep := testEndpoint(url)
	ep.API.MaxRetries = 1

	req, resp, err := c.Call(context.Background(), ep, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, connector.IsTransportFailure(err))
	require.NotNil(t, req)
	require.NotNil(t, resp)
	assert.Equal(t, 0, resp.StatusCode)
	assert.Equal(t, 2, resp.Attempts)
	assert.NotEmpty(t, resp.Error)
	assert.Len(t, d.got, 1)

	var cerr *connector.Error
	require.True(t, errors.As(err, &cerr))
	assert.True(t, cerr.IsRetryable())
	assert.Equal(t, 0, cerr.StatusCode)

	entries, err := backend.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, "API Error: Linear API - create_issue")
}

func TestCall_AttemptTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _, _ := newConnector(t, connector.WithTimeout(50*time.Millisecond))
	ep := testEndpoint(srv.URL)
	ep.API.MaxRetries = 0

	_, resp, err := c.Call(context.Background(), ep, nil, nil, nil)
	require.Error(t, err)
	var cerr *connector.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, connector.ErrorTypeTimeout, cerr.Type)
	assert.Equal(t, 0, resp.StatusCode)
}

func TestCall_GetWithQueryAndBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, []string{"bug", "ui"}, r.URL.Query()["labels"])
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "octo", user)
		assert.Equal(t, "hunter2", pass)
		_, _ = w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	ep := &catalog.Endpoint{
		ID:     "gh/issues",
		Name:   "issues",
		Path:   "repos/o/r/issues",
		Method: "GET",
		API: &catalog.API{
			ID:      "gh",
			Name:    "GitHub",
			BaseURL: srv.URL,
			Auth:    &auth.Config{ID: "b", Type: auth.TypeBasic, Username: "octo", Password: "hunter2"},
			Active:  true,
		},
		Active: true,
	}

	c, _, _ := newConnector(t)
	params := map[string]any{"state": "open", "labels": []any{"bug", "ui"}, "page": float64(2), "skip": nil}
	req, resp, err := c.Call(context.Background(), ep, nil, params, nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/repos/o/r/issues", req.URL)
	assert.NotContains(t, req.Headers, "Authorization", "basic credentials are not header snapshots")
	assert.Equal(t, map[string]any{"text": "plain text"}, resp.Data)
	assert.Equal(t, resp.Data, resp.Result())
}

func TestCall_ResponseTransform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[{"name":"a"},{"name":"b"}]}`))
	}))
	defer srv.Close()

	prog, err := jq.Compile("[.items[].name]")
	require.NoError(t, err)

	ep := testEndpoint(srv.URL)
	ep.ResponseMapping = map[string]string{"first": "items.0.name"}
	ep.ResponseTransform = prog

	c, _, _ := newConnector(t)
	_, resp, err := c.Call(context.Background(), ep, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"first": "a"}, resp.MappedData)
	assert.Equal(t, []any{"a", "b"}, resp.TransformedData)
	assert.Equal(t, []any{"a", "b"}, resp.Result())
}

func TestCall_CancelledContextStopsRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c, backend, _ := newConnector(t, connector.WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))

	_, resp, err := c.Call(ctx, testEndpoint(srv.URL), nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	entries, err := backend.RecentErrors(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "cancelled calls are still recorded")
}

func TestCall_Span(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	c, _, _ := newConnector(t, connector.WithTracerProvider(tp))
	_, _, err := c.Call(context.Background(), testEndpoint(srv.URL), nil, nil, nil)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "connector.call", span.Name())

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range span.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "linear", attrs["apihub.api.id"].AsString())
	assert.Equal(t, "linear/create_issue", attrs["apihub.endpoint.id"].AsString())
	assert.Equal(t, int64(201), attrs["http.response.status_code"].AsInt64())
}

func TestCall_EndpointWithoutAPI(t *testing.T) {
	c, _, _ := newConnector(t)
	_, _, err := c.Call(context.Background(), &catalog.Endpoint{Name: "orphan"}, nil, nil, nil)
	var cerr *connector.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, connector.ErrorTypeConfig, cerr.Type)
}

func TestJoinURL(t *testing.T) {
	tests := []struct {
		base, path, want string
	}{
		{"https://api.example.com", "v1/items", "https://api.example.com/v1/items"},
		{"https://api.example.com/", "/v1/items", "https://api.example.com/v1/items"},
		{"https://api.example.com//", "//v1//items", "https://api.example.com/v1//items"},
		{"https://api.example.com/base", "", "https://api.example.com/base"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, connector.JoinURL(tt.base, tt.path), tt.base+" + "+tt.path)
	}
}
