package jq

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		data       interface{}
		want       interface{}
		wantErr    bool
	}{
		{
			name:       "empty expression returns data as-is",
			expression: "",
			data:       map[string]interface{}{"foo": "bar"},
			want:       map[string]interface{}{"foo": "bar"},
		},
		{
			name:       "simple field extraction",
			expression: ".foo",
			data:       map[string]interface{}{"foo": "bar"},
			want:       "bar",
		},
		{
			name:       "go ints are normalized",
			expression: "map(.x)",
			data:       []interface{}{map[string]interface{}{"x": 1}, map[string]interface{}{"x": 2}},
			want:       []interface{}{float64(1), float64(2)},
		},
		{
			name:       "multiple outputs become a list",
			expression: ".a, .b",
			data:       map[string]interface{}{"a": "x", "b": "y"},
			want:       []interface{}{"x", "y"},
		},
		{
			name:       "no output is nil",
			expression: "empty",
			data:       map[string]interface{}{},
			want:       nil,
		},
		{
			name:       "invalid expression",
			expression: ".[",
			data:       map[string]interface{}{"foo": "bar"},
			wantErr:    true,
		},
		{
			name:       "runtime error",
			expression: ".foo | keys",
			data:       map[string]interface{}{"foo": "bar"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewExecutor(DefaultTimeout, DefaultMaxInputSize)
			got, err := executor.Execute(context.Background(), tt.expression, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProgram_Reuse(t *testing.T) {
	p, err := Compile(`{issue_id: .data.issueCreate.issue.id}`)
	require.NoError(t, err)
	assert.Equal(t, `{issue_id: .data.issueCreate.issue.id}`, p.String())

	executor := NewExecutor(0, 0)
	for _, id := range []string{"1", "2"} {
		got, err := executor.Run(context.Background(), p, map[string]any{
			"data": map[string]any{"issueCreate": map[string]any{"issue": map[string]any{"id": id}}},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"issue_id": id}, got)
	}
}

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile(".[")
	assert.Error(t, err)
}

func TestExecutor_Timeout(t *testing.T) {
	executor := NewExecutor(100*time.Millisecond, DefaultMaxInputSize)

	_, err := executor.Execute(context.Background(), "while(true; . + 1)", 0)
	if err == nil {
		t.Fatal("Execute() expected timeout error, got nil")
	}
}

func TestExecutor_InputTooLarge(t *testing.T) {
	executor := NewExecutor(0, 16)

	_, err := executor.Execute(context.Background(), ".", map[string]any{"text": strings.Repeat("x", 64)})
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Fatalf("expected size error, got %v", err)
	}
}
