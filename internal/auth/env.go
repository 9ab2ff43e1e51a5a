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

package auth

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// validEnvVarName matches valid environment variable names (alphanumeric + underscore).
var validEnvVarName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// expandEnvVar expands environment variable references in the form ${VAR_NAME}.
// If the value doesn't contain ${...}, it's returned as-is. Substituted
// values are copied verbatim and never expanded again.
func expandEnvVar(value string) (string, error) {
	if !strings.Contains(value, "${") {
		return value, nil
	}

	var b strings.Builder
	rest := value
	for {
		start := strings.Index(rest, "${")
		if start == -1 {
			b.WriteString(rest)
			break
		}

		end := strings.Index(rest[start:], "}")
		if end == -1 {
			return "", fmt.Errorf("malformed environment variable reference: unclosed ${")
		}
		end += start

		varName := rest[start+2 : end]
		if !validEnvVarName.MatchString(varName) {
			return "", fmt.Errorf("invalid environment variable name: %q", varName)
		}

		varValue, exists := os.LookupEnv(varName)
		if !exists {
			return "", fmt.Errorf("environment variable %q not found", varName)
		}

		b.WriteString(rest[:start])
		b.WriteString(varValue)
		rest = rest[end+1:]
	}

	return b.String(), nil
}
