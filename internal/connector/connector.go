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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/prakash09/api-connector/internal/auth"
	"github.com/prakash09/api-connector/internal/catalog"
	"github.com/prakash09/api-connector/internal/errorlog"
	"github.com/prakash09/api-connector/internal/jq"
	"github.com/prakash09/api-connector/internal/log"
	"github.com/prakash09/api-connector/internal/mapping"
	"github.com/prakash09/api-connector/internal/ratelimit"
	"github.com/prakash09/api-connector/internal/retry"
)

const (
	// TargetAPIConfig is the rate-limit target type for API configurations.
	TargetAPIConfig = "api_config"

	// Component is the error log component for connector failures.
	Component = "api_connector"

	// RelatedType is the error log related-object type for connector failures.
	RelatedType = "APIEndpoint"

	tracerName = "github.com/prakash09/api-connector/internal/connector"

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 10 * 1024 * 1024
)

// Connector executes calls against catalog endpoints.
type Connector struct {
	client           *http.Client
	limiter          *ratelimit.Limiter
	resolver         *auth.Resolver
	sink             errorlog.Sink
	transformer      *jq.Executor
	backoff          retry.Backoff
	timeout          time.Duration
	rateLimitEnabled bool
	now              func() time.Time
	sleep            func(context.Context, time.Duration) error
	logger           *slog.Logger
	tracer           trace.Tracer
}

// Option configures a Connector.
type Option func(*Connector)

// WithHTTPClient sets the client used for every attempt.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connector) { c.client = client }
}

// WithLimiter enables rate limiting through limiter.
func WithLimiter(limiter *ratelimit.Limiter) Option {
	return func(c *Connector) { c.limiter = limiter }
}

// WithAuthResolver sets the auth resolver.
func WithAuthResolver(resolver *auth.Resolver) Option {
	return func(c *Connector) { c.resolver = resolver }
}

// WithErrorSink sets where terminal failures are recorded.
func WithErrorSink(sink errorlog.Sink) Option {
	return func(c *Connector) { c.sink = sink }
}

// WithTransformer sets the jq executor used for response transforms.
func WithTransformer(e *jq.Executor) Option {
	return func(c *Connector) { c.transformer = e }
}

// WithBackoff sets the delay calculator.
func WithBackoff(b retry.Backoff) Option {
	return func(c *Connector) { c.backoff = b }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Connector) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimiting is the global switch; per-API flags apply only when it is
// on.
func WithRateLimiting(enabled bool) Option {
	return func(c *Connector) { c.rateLimitEnabled = enabled }
}

// WithClock overrides the time source used for rate-limit windows.
func WithClock(now func() time.Time) Option {
	return func(c *Connector) { c.now = now }
}

// WithSleep overrides the wait between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Connector) { c.sleep = sleep }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connector) { c.logger = logger }
}

// WithTracerProvider sets the provider spans are created from.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Connector) { c.tracer = tp.Tracer(tracerName) }
}

// New creates a connector. Without options it uses a pooled client, no rate
// limiting, a slog-only error sink and the global tracer provider.
func New(opts ...Option) *Connector {
	c := &Connector{
		timeout:          DefaultTimeout,
		rateLimitEnabled: true,
		now:              time.Now,
		sleep:            retry.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = log.WithComponent(c.logger, Component)
	if c.client == nil {
		c.client = NewHTTPClient(c.timeout)
	}
	if c.resolver == nil {
		c.resolver = auth.NewResolver(nil, c.logger)
	}
	if c.sink == nil {
		c.sink = &errorlog.SlogSink{Logger: c.logger}
	}
	if c.transformer == nil {
		c.transformer = jq.NewExecutor(0, 0)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	return c
}

// Call executes ep with optional body data, query params and extra headers.
//
// HTTP failures are returned as a Response with a non-empty Error and a nil
// error. A rate-limit rejection returns a nil request and response with an
// error matching ErrRateLimited. A call whose last attempt produced no
// response returns a Response with status 0 and an *Error of type
// ErrorTypeTransport or ErrorTypeTimeout.
func (c *Connector) Call(ctx context.Context, ep *catalog.Endpoint, data, params mapping.Object, headers map[string]string) (*Request, *Response, error) {
	if ep == nil || ep.API == nil {
		return nil, nil, &Error{Type: ErrorTypeConfig, Message: "endpoint has no owning API"}
	}
	api := ep.API
	method := strings.ToUpper(ep.Method)
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := c.tracer.Start(ctx, "connector.call",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("apihub.api.id", api.ID),
			attribute.String("apihub.endpoint.id", ep.ID),
			attribute.String("http.request.method", method),
		),
	)
	defer span.End()

	logger := log.WithEndpoint(c.logger, api.ID, ep.ID)
	start := time.Now()

	if c.rateLimitEnabled && api.RateLimitEnabled && c.limiter != nil {
		if !c.limiter.Admit(ctx, TargetAPIConfig, api.ID, api.RateLimit, c.now()) {
			err := &Error{
				Type:    ErrorTypeRateLimit,
				Message: fmt.Sprintf("rate limit exceeded for API %s", api.Name),
			}
			recordCall(api.ID, ep.Name, outcomeRateLimited, 0)
			span.SetStatus(codes.Error, "rate limited")
			span.RecordError(err)
			return nil, nil, err
		}
	}

	req := &Request{
		URL:     JoinURL(api.BaseURL, ep.Path),
		Method:  method,
		Headers: c.mergeHeaders(ctx, ep, headers),
		Params:  params,
		Data:    data,
	}
	if ep.RequestBodyTemplate != nil && data != nil {
		req.Data = mapping.FillTemplate(ep.RequestBodyTemplate, data)
	}
	span.SetAttributes(attribute.String("url.full", req.URL))

	cred := c.resolver.CredentialFor(ctx, api.Auth)
	policy := retry.Policy{MaxRetries: api.MaxRetries, Exponential: api.RetryBackoff}

	var (
		resp    *Response
		sendErr error
	)
	for attempt := 1; ; attempt++ {
		var retryAfter string
		resp, retryAfter, sendErr = c.send(ctx, req, cred)
		resp.Attempts = attempt
		recordResponse(api.ID, resp.StatusCode)

		if sendErr == nil && resp.StatusCode < 400 {
			break
		}
		if ctx.Err() != nil || !policy.ShouldRetry(attempt, resp.StatusCode, sendErr) {
			break
		}

		delay := c.backoff.NextDelay(attempt, policy.Exponential, retryAfter)
		recordRetry(api.ID, ep.Name)
		logger.Info("retrying API call",
			log.AttemptKey, attempt,
			"max_retries", policy.MaxRetries,
			"status_code", resp.StatusCode,
			"delay", delay.String(),
			"error", resp.Error)

		if err := c.sleep(ctx, delay); err != nil {
			break
		}
	}
	span.SetAttributes(
		attribute.Int("http.response.status_code", resp.StatusCode),
		attribute.Int("apihub.attempts", resp.Attempts),
	)

	if sendErr == nil && resp.StatusCode < 400 {
		c.finishResponse(ctx, logger, ep, resp)
		recordCall(api.ID, ep.Name, outcomeSuccess, time.Since(start))
		span.SetStatus(codes.Ok, "")
		logger.Info("API call succeeded",
			"status_code", resp.StatusCode,
			log.AttemptKey, resp.Attempts,
			log.DurationKey, time.Since(start).Milliseconds())
		return req, resp, nil
	}

	c.recordFailure(ctx, ep, req, resp)
	span.SetStatus(codes.Error, resp.Error)

	if sendErr != nil {
		recordCall(api.ID, ep.Name, outcomeTransport, time.Since(start))
		span.RecordError(sendErr)
		return req, resp, &Error{
			Type:    classifyTransportError(sendErr),
			Message: fmt.Sprintf("%s %s failed without a response", method, req.URL),
			Cause:   sendErr,
		}
	}

	recordCall(api.ID, ep.Name, outcomeHTTPError, time.Since(start))
	return req, resp, nil
}

// mergeHeaders layers API defaults, endpoint headers, caller headers and auth
// headers, later layers winning.
func (c *Connector) mergeHeaders(ctx context.Context, ep *catalog.Endpoint, extra map[string]string) map[string]string {
	merged := make(map[string]string)
	layers := []map[string]string{
		ep.API.DefaultHeaders,
		ep.Headers,
		extra,
		c.resolver.HeadersFor(ctx, ep.API.Auth),
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// send performs one attempt. A transport failure returns a status-0 response
// together with the error.
func (c *Connector) send(ctx context.Context, req *Request, cred *auth.BasicCredential) (*Response, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	fail := func(err error) (*Response, string, error) {
		return &Response{
			StatusCode: 0,
			Elapsed:    time.Since(started).Seconds(),
			Error:      err.Error(),
		}, "", err
	}

	target := req.URL
	if query := encodeQuery(req.Params); query != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + query
	}

	var body io.Reader
	if req.Data != nil && req.Method != http.MethodGet {
		raw, err := json.Marshal(req.Data)
		if err != nil {
			return fail(fmt.Errorf("encode request body: %w", err))
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, target, body)
	if err != nil {
		return fail(fmt.Errorf("build request: %w", err))
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if cred != nil {
		httpReq.SetBasicAuth(cred.Username, cred.Password)
	}

	log.Trace(ctx, c.logger, "sending API request",
		slog.String("method", req.Method),
		slog.String("url", target),
		slog.Any("headers", log.SanitizeHeaders(req.Headers)))

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return fail(err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return fail(fmt.Errorf("read response body: %w", err))
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    flattenHeaders(httpResp.Header),
		Data:       decodeBody(raw),
		Elapsed:    time.Since(started).Seconds(),
	}
	if httpResp.StatusCode >= 400 {
		resp.Error = httpErrorText(httpResp.StatusCode, req.URL)
	}
	return resp, httpResp.Header.Get("Retry-After"), nil
}

// finishResponse applies the response mapping and jq transform. A transform
// failure is logged and leaves TransformedData unset.
func (c *Connector) finishResponse(ctx context.Context, logger *slog.Logger, ep *catalog.Endpoint, resp *Response) {
	if len(ep.ResponseMapping) > 0 {
		resp.MappedData = mapping.MapResponse(ep.ResponseMapping, resp.Data)
	}
	if ep.ResponseTransform == nil {
		return
	}
	out, err := c.transformer.Run(ctx, ep.ResponseTransform, resp.Data)
	if err != nil {
		logger.Warn("response transform failed",
			"expression", ep.ResponseTransform.String(),
			"error", err)
		return
	}
	resp.TransformedData = out
}

// recordFailure writes the terminal failure to the error sink. The write is
// detached from ctx so a cancelled call is still recorded.
func (c *Connector) recordFailure(ctx context.Context, ep *catalog.Endpoint, req *Request, resp *Response) {
	api := ep.API
	errText := resp.Error
	if errText == "" {
		errText = "unknown failure"
	}

	c.logger.Warn("API call failed",
		log.APIKey, api.ID,
		log.EndpointKey, ep.ID,
		"status_code", resp.StatusCode,
		log.AttemptKey, resp.Attempts,
		"error", errText)

	errorlog.Record(context.WithoutCancel(ctx), c.sink, c.logger, errorlog.Entry{
		Level:     errorlog.LevelError,
		Message:   fmt.Sprintf("API Error: %s - %s: %s", api.Name, ep.Name, errText),
		Component: Component,
		Context: map[string]any{
			"api_config_id":   api.ID,
			"api_config_name": api.Name,
			"endpoint_id":     ep.ID,
			"endpoint_name":   ep.Name,
			"request":         req.snapshot(),
			"response":        resp.snapshot(),
			"error":           errText,
		},
		RelatedType: RelatedType,
		RelatedID:   ep.ID,
	})
}
