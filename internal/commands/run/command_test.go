package run

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prakash09/api-connector/internal/commands/shared"
)

const trackerCatalog = `apis:
  - id: tracker
    name: Tracker
    base_url: BASE_URL
    max_retries: 0
    endpoints:
      - name: create_issue
        path: /issues
        method: POST
        response_mapping:
          id: issue.id
functions:
  - name: create_issue
    description: Create an issue
    api: tracker
    endpoint: create_issue
    parameters_schema:
      type: object
      properties:
        title: {type: string}
      required: [title]
    parameter_mapping:
      summary: title
`

// setupEnv points configuration at a memory backend and a catalog bound to
// baseURL.
func setupEnv(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(trackerCatalog, "BASE_URL", baseURL)), 0o600))

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("APIHUB_CATALOG", path)
	t.Setenv("APIHUB_BACKEND", "memory")
	shared.SetConfigPathForTest("")
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewCommand()
	if args[0] == "functions" {
		cmd = NewFunctionsCommand()
		args = args[1:]
	}
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestParseArguments(t *testing.T) {
	args, err := parseArguments(`{"title":"bug","priority":2}`, []string{"title=override", "team=eng"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "override", "priority": float64(2), "team": "eng"}, args)

	empty, err := parseArguments("", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = parseArguments(`[1,2]`, nil)
	assert.Error(t, err)

	_, err = parseArguments("", []string{"novalue"})
	assert.Error(t, err)
}

func TestExec_Success(t *testing.T) {
	var body map[string]any
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"issue":{"id":"ISS-7"}}`))
	}))
	defer upstream.Close()
	setupEnv(t, upstream.URL)

	out, err := runCommand(t, "create_issue", "--arg", "title=Login broken")
	require.NoError(t, err)

	var got Result
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, 200, got.StatusCode)
	assert.Equal(t, map[string]any{"id": "ISS-7"}, got.Result)
	assert.Equal(t, "Login broken", body["summary"])
}

func TestExec_UpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer upstream.Close()
	setupEnv(t, upstream.URL)

	out, err := runCommand(t, "create_issue", "--args", `{"title":"x"}`)
	var exitErr *shared.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, shared.ExitUpstreamFailed, exitErr.Code)

	var got Result
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "failed", got.Status)
	assert.Contains(t, got.Error, "400 Client Error")
}

func TestExec_InvalidArguments(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := runCommand(t, "create_issue", "--args", `{}`)
	var exitErr *shared.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, shared.ExitInvalidArguments, exitErr.Code)
}

func TestExec_UnknownFunction(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	_, err := runCommand(t, "nope")
	var exitErr *shared.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, shared.ExitInvalidArguments, exitErr.Code)
	assert.Contains(t, err.Error(), "unknown function nope")
}

func TestFunctions(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")

	out, err := runCommand(t, "functions")
	require.NoError(t, err)

	var tools []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &tools))
	require.Len(t, tools, 1)
	assert.Equal(t, "create_issue", tools[0]["name"])
}
