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

package mapping

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Map applies m to input.
//
// Targets containing dots are written as nested objects, so a target of
// "variables.title" produces {"variables": {"title": ...}}. Input keys that
// are neither declared targets nor already present in the output are copied
// through unchanged. An empty mapping returns input as is.
func Map(m Mapping, input Object) Object {
	if m.Len() == 0 {
		return input
	}

	out := make(Object, len(input)+len(m.entries))
	for _, e := range m.entries {
		v, ok := e.Rule.apply(input)
		if !ok {
			continue
		}
		setPath(out, e.Target, deepCopy(v))
	}

	for key, value := range input {
		if m.targets[key] {
			continue
		}
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = value
	}

	return out
}

// MapResponse extracts fields from a response body. Each target receives the
// value found at its source key or dotted path; missing paths are omitted.
func MapResponse(m map[string]string, input any) Object {
	out := make(Object, len(m))
	for target, source := range m {
		if !strings.Contains(source, ".") {
			if obj, ok := input.(map[string]any); ok {
				if v, ok := obj[source]; ok {
					out[target] = v
				}
			}
			continue
		}
		if v, ok := Lookup(input, source); ok && v != nil {
			out[target] = v
		}
	}
	return out
}

// Lookup walks a dotted path through nested objects and lists. A segment
// indexes a list when it parses as a non-negative integer. It reports false
// when a key is missing, an index is out of range or an intermediate value
// cannot be traversed.
func Lookup(input any, path string) (any, bool) {
	current := input
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			v, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			current = node[idx]
		default:
			return nil, false
		}
	}
	return current, true
}

// setPath writes value at a dotted path, creating intermediate objects.
// A non-object intermediate value is replaced.
func setPath(out Object, path string, value any) {
	segments := strings.Split(path, ".")
	node := out
	for _, segment := range segments[:len(segments)-1] {
		next, ok := node[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[segment] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}

// FillTemplate fills the slots of a request body template with data.
//
// Only keys that exist in the template are taken from data; data keys the
// template does not declare are dropped. When both sides hold an object under
// the same key the fill recurses, so nested defaults not present in data keep
// their template values. The template itself is not modified.
func FillTemplate(template, data Object) Object {
	out := make(Object, len(template))
	for key, tv := range template {
		dv, ok := data[key]
		if !ok {
			out[key] = deepCopy(tv)
			continue
		}
		tmap, tIsMap := tv.(map[string]any)
		dmap, dIsMap := dv.(map[string]any)
		if tIsMap && dIsMap {
			out[key] = FillTemplate(tmap, dmap)
			continue
		}
		out[key] = dv
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopy(val)
		}
		return out
	default:
		return v
	}
}

// scalarString formats strings, numbers and booleans. Other values are
// reported as non-scalar.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t), true
	case json.Number:
		return t.String(), true
	default:
		return "", false
	}
}

// stringify formats any JSON value. Objects and lists are rendered as JSON.
func stringify(v any) string {
	if s, ok := scalarString(v); ok {
		return s
	}
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
