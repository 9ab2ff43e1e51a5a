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

// Package mapping transforms one nested JSON structure into another using
// declarative rules.
//
// Rules come from configuration (function parameter mappings and endpoint
// response mappings). They are classified once by Compile into a closed set
// of rule kinds and then applied many times by Map:
//
//   - "title"                     copy input["title"]
//   - "user.address.city"         walk maps and lists ("items.0.id")
//   - "{first} {last}"            substitute scalar inputs into a string
//   - {static: 42}                literal value
//   - {transform: join, ...}      join several inputs with a separator
//   - {transform: map, ...}       translate one input through a lookup table
//
// A rule that cannot produce a value leaves its target key out of the
// result. Mapping never fails at call time.
package mapping
