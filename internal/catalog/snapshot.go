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
	"fmt"
	"sort"

	"github.com/prakash09/api-connector/internal/auth"
)

var _ Store = (*Snapshot)(nil)

// Snapshot is an immutable in-memory catalog.
type Snapshot struct {
	source    string
	auths     map[string]*auth.Config
	apis      map[string]*API
	endpoints map[string]*Endpoint
	functions map[string]*Function // active only
	ordered   []*Function          // all, by name
	warnings  []string
}

// Source returns the file the snapshot was loaded from, if any.
func (s *Snapshot) Source() string {
	return s.source
}

// APIs returns every API configuration ordered by ID.
func (s *Snapshot) APIs() []*API {
	out := make([]*API, 0, len(s.apis))
	for _, api := range s.apis {
		out = append(out, api)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Warnings returns non-fatal problems found while building the snapshot.
func (s *Snapshot) Warnings() []string {
	return s.warnings
}

func (s *Snapshot) warn(format string, args ...any) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

// Function implements Store.
func (s *Snapshot) Function(_ context.Context, name string) (*Function, error) {
	fn, ok := s.functions[name]
	if !ok {
		return nil, fmt.Errorf("function %q: %w", name, ErrNotFound)
	}
	return fn, nil
}

// Functions implements Store.
func (s *Snapshot) Functions(_ context.Context) ([]*Function, error) {
	out := make([]*Function, len(s.ordered))
	copy(out, s.ordered)
	return out, nil
}

// Endpoint implements Store.
func (s *Snapshot) Endpoint(_ context.Context, id string) (*Endpoint, error) {
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, fmt.Errorf("endpoint %q: %w", id, ErrNotFound)
	}
	return ep, nil
}

// API implements Store.
func (s *Snapshot) API(_ context.Context, id string) (*API, error) {
	api, ok := s.apis[id]
	if !ok {
		return nil, fmt.Errorf("api %q: %w", id, ErrNotFound)
	}
	return api, nil
}

// Auth implements Store.
func (s *Snapshot) Auth(_ context.Context, id string) (*auth.Config, error) {
	cfg, ok := s.auths[id]
	if !ok {
		return nil, fmt.Errorf("authentication %q: %w", id, ErrNotFound)
	}
	return cfg, nil
}
