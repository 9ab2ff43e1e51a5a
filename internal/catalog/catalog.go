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
	"context"
	"errors"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/prakash09/api-connector/internal/auth"
	"github.com/prakash09/api-connector/internal/jq"
	"github.com/prakash09/api-connector/internal/mapping"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// API is an external API configuration.
type API struct {
	ID               string
	Name             string
	BaseURL          string
	Auth             *auth.Config
	RateLimitEnabled bool
	RateLimit        string
	MaxRetries       int
	RetryBackoff     bool
	DefaultHeaders   map[string]string
	Active           bool
}

// Endpoint is one HTTP route under an API.
type Endpoint struct {
	// ID is "<api id>/<endpoint name>".
	ID                  string
	Name                string
	API                 *API
	Path                string
	Method              string
	RequestBodyTemplate map[string]any
	Headers             map[string]string
	ResponseMapping     map[string]string
	ResponseTransform   *jq.Program
	Active              bool
}

// Function is a named outbound action resolving to one endpoint.
type Function struct {
	Name             string
	Description      string
	Endpoint         *Endpoint
	ParametersSchema map[string]any
	ParameterMapping mapping.Mapping
	Active           bool

	schema *openapi3.Schema
}

// Callable reports whether the function, its endpoint and its API are all
// active.
func (f *Function) Callable() bool {
	return f.Active && f.Endpoint != nil && f.Endpoint.Active &&
		f.Endpoint.API != nil && f.Endpoint.API.Active
}

// ValidateArguments checks args against the parameters schema. Functions
// without a schema accept anything.
func (f *Function) ValidateArguments(args map[string]any) error {
	if f.schema == nil {
		return nil
	}
	if args == nil {
		args = map[string]any{}
	}
	return f.schema.VisitJSON(args)
}

// Store gives read-only access to configuration records.
type Store interface {
	// Function returns the active function with the given name.
	Function(ctx context.Context, name string) (*Function, error)

	// Functions returns every function, active or not, sorted by name.
	Functions(ctx context.Context) ([]*Function, error)

	Endpoint(ctx context.Context, id string) (*Endpoint, error)
	API(ctx context.Context, id string) (*API, error)
	Auth(ctx context.Context, id string) (*auth.Config, error)
}
