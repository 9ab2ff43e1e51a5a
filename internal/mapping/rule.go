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
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Object is a decoded JSON object.
type Object = map[string]any

// Kind identifies the shape of a compiled rule.
type Kind string

const (
	KindPath     Kind = "path"
	KindTemplate Kind = "template"
	KindStatic   Kind = "static"
	KindJoin     Kind = "join"
	KindMap      Kind = "map"
)

// Rule derives one output value from the input object.
// The set of implementations is closed; see Compile.
type Rule interface {
	Kind() Kind
	apply(input Object) (any, bool)
}

// Entry binds a compiled rule to its output key.
type Entry struct {
	Target string
	Rule   Rule
}

// Mapping is a compiled, immutable set of rules ordered by target key.
type Mapping struct {
	entries []Entry
	targets map[string]bool
}

// Len returns the number of rules.
func (m Mapping) Len() int {
	return len(m.entries)
}

// Entries returns the compiled rules in application order.
func (m Mapping) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// PathRule copies the value found at a key or dotted path.
type PathRule struct {
	Path string
}

// TemplateRule substitutes {name} placeholders with scalar input values.
type TemplateRule struct {
	Template string
}

// StaticRule always yields Value.
type StaticRule struct {
	Value any
}

// JoinRule concatenates the stringified values of Fields with Separator.
type JoinRule struct {
	Fields    []string
	Separator string
}

// MapRule looks up input[Field] in Table and falls back to Default.
type MapRule struct {
	Field      string
	Table      map[string]any
	Default    any
	HasDefault bool
}

func (PathRule) Kind() Kind     { return KindPath }
func (TemplateRule) Kind() Kind { return KindTemplate }
func (StaticRule) Kind() Kind   { return KindStatic }
func (JoinRule) Kind() Kind     { return KindJoin }
func (MapRule) Kind() Kind      { return KindMap }

type joinSpec struct {
	Fields    []string `mapstructure:"fields"`
	Separator *string  `mapstructure:"separator"`
}

type mapSpec struct {
	Field   string         `mapstructure:"field"`
	Mapping map[string]any `mapstructure:"mapping"`
}

// Compile classifies raw configuration rules into a Mapping.
// A nil or empty raw mapping compiles to the identity mapping.
func Compile(raw map[string]any) (Mapping, error) {
	m := Mapping{targets: make(map[string]bool, len(raw))}

	targets := make([]string, 0, len(raw))
	for target := range raw {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	for _, target := range targets {
		rule, err := CompileRule(raw[target])
		if err != nil {
			return Mapping{}, fmt.Errorf("mapping %q: %w", target, err)
		}
		m.entries = append(m.entries, Entry{Target: target, Rule: rule})
		m.targets[target] = true
	}

	return m, nil
}

// MustCompile is like Compile but panics on error. Intended for tests and
// static tables.
func MustCompile(raw map[string]any) Mapping {
	m, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return m
}

// CompileRule classifies a single raw rule.
func CompileRule(raw any) (Rule, error) {
	switch v := raw.(type) {
	case string:
		if strings.Contains(v, "{") {
			return TemplateRule{Template: v}, nil
		}
		return PathRule{Path: v}, nil

	case map[string]any:
		if value, ok := v["static"]; ok {
			return StaticRule{Value: value}, nil
		}
		transform, _ := v["transform"].(string)
		switch transform {
		case "join":
			var spec joinSpec
			if err := mapstructure.Decode(v, &spec); err != nil {
				return nil, fmt.Errorf("invalid join transform: %w", err)
			}
			if spec.Fields == nil || spec.Separator == nil {
				return nil, fmt.Errorf("join transform requires fields and separator")
			}
			return JoinRule{Fields: spec.Fields, Separator: *spec.Separator}, nil

		case "map":
			var spec mapSpec
			if err := mapstructure.Decode(v, &spec); err != nil {
				return nil, fmt.Errorf("invalid map transform: %w", err)
			}
			if spec.Field == "" {
				return nil, fmt.Errorf("map transform requires field")
			}
			def, hasDefault := v["default"]
			return MapRule{
				Field:      spec.Field,
				Table:      spec.Mapping,
				Default:    def,
				HasDefault: hasDefault,
			}, nil

		case "":
			return nil, fmt.Errorf("object rule needs a static value or a transform")
		default:
			return nil, fmt.Errorf("unknown transform %q", transform)
		}

	default:
		return nil, fmt.Errorf("unsupported rule type %T", raw)
	}
}

func (r PathRule) apply(input Object) (any, bool) {
	if v, ok := input[r.Path]; ok {
		return v, true
	}
	if !strings.Contains(r.Path, ".") {
		return nil, false
	}
	v, ok := Lookup(input, r.Path)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (r TemplateRule) apply(input Object) (any, bool) {
	if v, ok := input[r.Template]; ok {
		return v, true
	}
	return expandTemplate(r.Template, input), true
}

// expandTemplate replaces each {name} whose input value is a scalar. Text
// taken from input is never scanned again, and unmatched placeholders are
// kept verbatim.
func expandTemplate(template string, input Object) string {
	var b strings.Builder
	rest := template
	for {
		open := strings.IndexByte(rest, '{')
		if open == -1 {
			b.WriteString(rest)
			return b.String()
		}
		closing := strings.IndexByte(rest[open+1:], '}')
		if closing == -1 {
			b.WriteString(rest)
			return b.String()
		}
		closing += open + 1

		name := rest[open+1 : closing]
		if strings.IndexByte(name, '{') != -1 {
			// "{{a}" keeps the first brace and retries from the second.
			b.WriteString(rest[:open+1])
			rest = rest[open+1:]
			continue
		}

		b.WriteString(rest[:open])
		if s, ok := scalarString(input[name]); ok {
			b.WriteString(s)
		} else {
			b.WriteString(rest[open : closing+1])
		}
		rest = rest[closing+1:]
	}
}

func (r StaticRule) apply(Object) (any, bool) {
	return r.Value, true
}

func (r JoinRule) apply(input Object) (any, bool) {
	parts := make([]string, 0, len(r.Fields))
	for _, field := range r.Fields {
		if v, ok := input[field]; ok {
			parts = append(parts, stringify(v))
		}
	}
	return strings.Join(parts, r.Separator), true
}

func (r MapRule) apply(input Object) (any, bool) {
	if v, ok := input[r.Field]; ok {
		if mapped, ok := r.Table[stringify(v)]; ok {
			return mapped, true
		}
	}
	if r.HasDefault {
		return r.Default, true
	}
	return nil, false
}
