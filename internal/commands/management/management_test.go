package management

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prakash09/api-connector/internal/backend/sqlite"
	"github.com/prakash09/api-connector/internal/calllog"
	"github.com/prakash09/api-connector/internal/commands/shared"
	"github.com/prakash09/api-connector/internal/connector"
	"github.com/prakash09/api-connector/internal/errorlog"
	"github.com/prakash09/api-connector/internal/ratelimit"
)

const catalogYAML = `apis:
  - id: tracker
    base_url: https://tracker.test
    rate_limit: 3/minute
`

// setup writes a catalog, points configuration at a sqlite file and returns
// the database path.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogYAML), 0o600))
	dbPath := filepath.Join(dir, "apihub.db")

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("APIHUB_CATALOG", catalogPath)
	t.Setenv("APIHUB_BACKEND", "sqlite")
	t.Setenv("APIHUB_SQLITE_PATH", dbPath)
	shared.SetConfigPathForTest("")
	shared.SetJSONForTest(true)
	t.Cleanup(func() { shared.SetJSONForTest(false) })
	return dbPath
}

func seed(t *testing.T, dbPath string, fn func(b *sqlite.Backend)) {
	t.Helper()
	b, err := sqlite.New(sqlite.Config{Path: dbPath})
	require.NoError(t, err)
	defer b.Close()
	fn(b)
}

func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), errOut.String())
	return out.String()
}

func TestRateLimitStatus(t *testing.T) {
	dbPath := setup(t)
	seed(t, dbPath, func(b *sqlite.Backend) {
		now := time.Now()
		spec, err := ratelimit.ParseSpec("3/minute")
		require.NoError(t, err)
		start, end := ratelimit.Window(spec, now)
		key := ratelimit.WindowKey{TargetType: connector.TargetAPIConfig, TargetID: "tracker", Start: start}
		for i := 0; i < 2; i++ {
			_, _, err := b.Increment(context.Background(), key, 3, end, now)
			require.NoError(t, err)
		}
	})

	out := run(t, NewRateLimitCommand(), "status", "tracker")

	var got Status
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "tracker", got.API)
	assert.Equal(t, "3/minute", got.Limit)
	// The seeded window may have rolled over at a minute boundary.
	if got.Count == 2 {
		assert.Equal(t, 1, got.Remaining)
	} else {
		assert.Equal(t, 3, got.Remaining)
	}
}

func TestRateLimitStatus_UnknownAPI(t *testing.T) {
	setup(t)
	cmd := NewRateLimitCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"status", "nope"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown API nope")
}

func TestErrorsCommand(t *testing.T) {
	dbPath := setup(t)
	seed(t, dbPath, func(b *sqlite.Backend) {
		require.NoError(t, b.LogError(context.Background(), errorlog.Entry{
			ID:        "e1",
			Level:     errorlog.LevelError,
			Message:   "API Error: Tracker - list: 503 Server Error",
			Component: connector.Component,
			RelatedID: "tracker/list",
			CreatedAt: time.Now(),
		}))
	})

	out := run(t, NewErrorsCommand())

	var entries []errorlog.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "tracker/list", entries[0].RelatedID)
}

func TestCallsCommand_FilterByFunction(t *testing.T) {
	dbPath := setup(t)
	seed(t, dbPath, func(b *sqlite.Backend) {
		for i, name := range []string{"list_issues", "close_issue", "list_issues"} {
			require.NoError(t, b.RecordCall(context.Background(), calllog.Record{
				ID:         string(rune('a' + i)),
				Function:   name,
				Status:     calllog.StatusSuccess,
				StatusCode: 200,
				CreatedAt:  time.Now().Add(time.Duration(i) * time.Second),
			}))
		}
	})

	out := run(t, NewCallsCommand(), "--function", "list_issues")

	var records []calllog.Record
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, "list_issues", r.Function)
	}
}
