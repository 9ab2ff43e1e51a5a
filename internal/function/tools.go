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

package function

import (
	"context"
	"fmt"
)

// Tool describes one callable function in the shape model tool-calling APIs
// expect.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tools lists every callable function: the function, its endpoint and its API
// must all be active.
func (e *Executor) Tools(ctx context.Context) ([]Tool, error) {
	fns, err := e.store.Functions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}

	tools := make([]Tool, 0, len(fns))
	for _, fn := range fns {
		if !fn.Callable() {
			continue
		}
		params := fn.ParametersSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, Tool{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  params,
		})
	}
	return tools, nil
}
