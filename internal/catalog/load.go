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

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/prakash09/api-connector/internal/auth"
	"github.com/prakash09/api-connector/internal/jq"
	"github.com/prakash09/api-connector/internal/mapping"
	"github.com/prakash09/api-connector/internal/ratelimit"
)

// Defaults applied to API records that leave the field unset.
const (
	DefaultRateLimit  = "100/hour"
	DefaultMaxRetries = 3
	DefaultMethod     = "GET"
)

var validMethods = map[string]bool{
	"GET":    true,
	"POST":   true,
	"PUT":    true,
	"PATCH":  true,
	"DELETE": true,
}

// Document is the on-disk catalog format.
type Document struct {
	Authentications []auth.Config      `yaml:"authentications" json:"authentications"`
	APIs            []APIDocument      `yaml:"apis" json:"apis"`
	Functions       []FunctionDocument `yaml:"functions" json:"functions"`
}

// APIDocument describes one API and its endpoints.
type APIDocument struct {
	ID               string             `yaml:"id" json:"id"`
	Name             string             `yaml:"name" json:"name"`
	Description      string             `yaml:"description,omitempty" json:"description,omitempty"`
	BaseURL          string             `yaml:"base_url" json:"base_url"`
	Auth             string             `yaml:"auth,omitempty" json:"auth,omitempty"`
	RateLimitEnabled *bool              `yaml:"rate_limit_enabled,omitempty" json:"rate_limit_enabled,omitempty"`
	RateLimit        string             `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	MaxRetries       *int               `yaml:"max_retries,omitempty" json:"max_retries,omitempty"`
	RetryBackoff     *bool              `yaml:"retry_backoff,omitempty" json:"retry_backoff,omitempty"`
	DefaultHeaders   map[string]string  `yaml:"default_headers,omitempty" json:"default_headers,omitempty"`
	Active           *bool              `yaml:"active,omitempty" json:"active,omitempty"`
	Endpoints        []EndpointDocument `yaml:"endpoints" json:"endpoints"`
}

// EndpointDocument describes one endpoint.
type EndpointDocument struct {
	Name                string            `yaml:"name" json:"name"`
	Description         string            `yaml:"description,omitempty" json:"description,omitempty"`
	Path                string            `yaml:"path" json:"path"`
	Method              string            `yaml:"method,omitempty" json:"method,omitempty"`
	RequestBodyTemplate map[string]any    `yaml:"request_body_template,omitempty" json:"request_body_template,omitempty"`
	Headers             map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	ResponseMapping     map[string]string `yaml:"response_mapping,omitempty" json:"response_mapping,omitempty"`
	ResponseTransform   string            `yaml:"response_transform,omitempty" json:"response_transform,omitempty"`
	Active              *bool             `yaml:"active,omitempty" json:"active,omitempty"`
}

// FunctionDocument describes one function.
type FunctionDocument struct {
	Name             string         `yaml:"name" json:"name"`
	Description      string         `yaml:"description" json:"description"`
	API              string         `yaml:"api" json:"api"`
	Endpoint         string         `yaml:"endpoint" json:"endpoint"`
	ParametersSchema map[string]any `yaml:"parameters_schema,omitempty" json:"parameters_schema,omitempty"`
	ParameterMapping map[string]any `yaml:"parameter_mapping,omitempty" json:"parameter_mapping,omitempty"`
	Active           *bool          `yaml:"active,omitempty" json:"active,omitempty"`
}

// LoadFile reads and builds a catalog. Files ending in .json are decoded as
// JSON, anything else as YAML.
func LoadFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	doc, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	snap, err := Build(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	snap.source = path
	return snap, nil
}

// Parse decodes a catalog document. Unknown fields are rejected.
func Parse(data []byte, isJSON bool) (*Document, error) {
	doc := &Document{}
	if isJSON {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(doc); err != nil {
			return nil, fmt.Errorf("failed to parse catalog JSON: %w", err)
		}
		return doc, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	return doc, nil
}

// Build validates doc and produces an immutable snapshot. Problems that the
// engine tolerates at call time, such as an unparseable rate limit, are
// reported as warnings on the snapshot instead of failing the build.
func Build(doc *Document) (*Snapshot, error) {
	snap := &Snapshot{
		auths:     make(map[string]*auth.Config),
		apis:      make(map[string]*API),
		endpoints: make(map[string]*Endpoint),
		functions: make(map[string]*Function),
	}

	for i := range doc.Authentications {
		cfg := doc.Authentications[i]
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if _, dup := snap.auths[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate authentication id %q", cfg.ID)
		}
		snap.auths[cfg.ID] = &cfg
	}

	for _, ad := range doc.APIs {
		if err := snap.addAPI(ad); err != nil {
			return nil, err
		}
	}

	for _, fd := range doc.Functions {
		if err := snap.addFunction(fd); err != nil {
			return nil, err
		}
	}

	sort.Slice(snap.ordered, func(i, j int) bool {
		return snap.ordered[i].Name < snap.ordered[j].Name
	})

	return snap, nil
}

func (s *Snapshot) addAPI(ad APIDocument) error {
	if ad.ID == "" {
		return fmt.Errorf("api id is required")
	}
	if _, dup := s.apis[ad.ID]; dup {
		return fmt.Errorf("duplicate api id %q", ad.ID)
	}

	u, err := url.Parse(ad.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api %q: base_url must be an absolute http(s) URL, got %q", ad.ID, ad.BaseURL)
	}

	api := &API{
		ID:               ad.ID,
		Name:             ad.Name,
		BaseURL:          ad.BaseURL,
		RateLimitEnabled: boolOr(ad.RateLimitEnabled, true),
		RateLimit:        ad.RateLimit,
		MaxRetries:       DefaultMaxRetries,
		RetryBackoff:     boolOr(ad.RetryBackoff, true),
		DefaultHeaders:   ad.DefaultHeaders,
		Active:           boolOr(ad.Active, true),
	}
	if api.Name == "" {
		api.Name = ad.ID
	}
	if api.RateLimit == "" {
		api.RateLimit = DefaultRateLimit
	}
	if _, err := ratelimit.ParseSpec(api.RateLimit); err != nil {
		s.warn("api %q: %v; %s will be applied", ad.ID, err, ratelimit.DefaultSpec)
	}
	if ad.MaxRetries != nil {
		if *ad.MaxRetries < 0 {
			return fmt.Errorf("api %q: max_retries must not be negative", ad.ID)
		}
		api.MaxRetries = *ad.MaxRetries
	}
	if ad.Auth != "" {
		cfg, ok := s.auths[ad.Auth]
		if !ok {
			return fmt.Errorf("api %q: unknown authentication %q", ad.ID, ad.Auth)
		}
		api.Auth = cfg
	}

	s.apis[api.ID] = api

	for _, ed := range ad.Endpoints {
		if err := s.addEndpoint(api, ed); err != nil {
			return err
		}
	}
	return nil
}

func (s *Snapshot) addEndpoint(api *API, ed EndpointDocument) error {
	if ed.Name == "" {
		return fmt.Errorf("api %q: endpoint name is required", api.ID)
	}
	id := api.ID + "/" + ed.Name
	if _, dup := s.endpoints[id]; dup {
		return fmt.Errorf("api %q: duplicate endpoint %q", api.ID, ed.Name)
	}

	method := strings.ToUpper(ed.Method)
	if method == "" {
		method = DefaultMethod
	}
	if !validMethods[method] {
		return fmt.Errorf("endpoint %q: unsupported method %q", id, ed.Method)
	}

	ep := &Endpoint{
		ID:                  id,
		Name:                ed.Name,
		API:                 api,
		Path:                ed.Path,
		Method:              method,
		RequestBodyTemplate: ed.RequestBodyTemplate,
		Headers:             ed.Headers,
		ResponseMapping:     ed.ResponseMapping,
		Active:              boolOr(ed.Active, true),
	}

	if ed.ResponseTransform != "" {
		program, err := jq.Compile(ed.ResponseTransform)
		if err != nil {
			return fmt.Errorf("endpoint %q: response_transform: %w", id, err)
		}
		ep.ResponseTransform = program
	}

	s.endpoints[id] = ep
	return nil
}

func (s *Snapshot) addFunction(fd FunctionDocument) error {
	if fd.Name == "" {
		return fmt.Errorf("function name is required")
	}

	ep, ok := s.endpoints[fd.API+"/"+fd.Endpoint]
	if !ok {
		return fmt.Errorf("function %q: unknown endpoint %q of api %q", fd.Name, fd.Endpoint, fd.API)
	}

	m, err := mapping.Compile(fd.ParameterMapping)
	if err != nil {
		return fmt.Errorf("function %q: parameter_mapping: %w", fd.Name, err)
	}

	fn := &Function{
		Name:             fd.Name,
		Description:      fd.Description,
		Endpoint:         ep,
		ParametersSchema: fd.ParametersSchema,
		ParameterMapping: m,
		Active:           boolOr(fd.Active, true),
	}

	if len(fd.ParametersSchema) > 0 {
		schema, err := parseSchema(fd.ParametersSchema)
		if err != nil {
			return fmt.Errorf("function %q: parameters_schema: %w", fd.Name, err)
		}
		fn.schema = schema
	}

	if fn.Active {
		if _, dup := s.functions[fn.Name]; dup {
			return fmt.Errorf("duplicate active function %q", fn.Name)
		}
		s.functions[fn.Name] = fn
	}
	s.ordered = append(s.ordered, fn)
	return nil
}

// parseSchema decodes a JSON Schema object into an OpenAPI schema and
// validates its structure.
func parseSchema(raw map[string]any) (*openapi3.Schema, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema: %w", err)
	}

	schema := openapi3.NewSchema()
	if err := schema.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	if err := schema.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return schema, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
