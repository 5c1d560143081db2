package stringutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFillPlaceholders(t *testing.T) {
	params := map[string]any{"env": "prod", "count": 3}

	t.Run("ReplacesKnownKeys", func(t *testing.T) {
		filled, err := FillPlaceholders("echo #env# x#count#", params, false)
		require.NoError(t, err)
		require.Equal(t, "echo prod x3", filled)
	})

	t.Run("NoPlaceholders", func(t *testing.T) {
		filled, err := FillPlaceholders("plain command", params, false)
		require.NoError(t, err)
		require.Equal(t, "plain command", filled)
	})

	t.Run("MissingKeyFails", func(t *testing.T) {
		_, err := FillPlaceholders("echo #missing#", params, false)
		require.ErrorIs(t, err, ErrParameterMissing)
	})

	t.Run("PartialFillKeepsUnknown", func(t *testing.T) {
		filled, err := FillPlaceholders("echo #missing# #env#", params, true)
		require.NoError(t, err)
		require.Equal(t, "echo #missing# prod", filled)
	})
}

func TestParseArguments(t *testing.T) {
	params := map[string]any{"env": "prod", "retries": 5}

	t.Run("MapValuesKeepType", func(t *testing.T) {
		resolved, err := ParseArguments(map[string]any{"target": "#env#", "n": "#retries#", "fixed": 1}, params)
		require.NoError(t, err)
		require.Equal(t, map[string]any{"target": "prod", "n": 5, "fixed": 1}, resolved)
	})

	t.Run("ListValues", func(t *testing.T) {
		resolved, err := ParseArguments([]any{"#env#", 42, "literal"}, params)
		require.NoError(t, err)
		require.Equal(t, []any{"prod", 42, "literal"}, resolved)
	})

	t.Run("MissingKeyFails", func(t *testing.T) {
		_, err := ParseArguments(map[string]any{"target": "#nope#"}, params)
		require.ErrorIs(t, err, ErrParameterMissing)
	})

	t.Run("NilPassesThrough", func(t *testing.T) {
		resolved, err := ParseArguments(nil, params)
		require.NoError(t, err)
		require.Nil(t, resolved)
	})
}

func TestFlatArgs(t *testing.T) {
	tests := []struct {
		name      string
		arguments any
		delimiter string
		expected  string
	}{
		{
			name:      "MapSortedKeys",
			arguments: map[string]any{"b": 2, "a": "one"},
			delimiter: "; ",
			expected:  `a="one"; b="2"; `,
		},
		{
			name:      "List",
			arguments: []any{"x", 7},
			delimiter: " ",
			expected:  `"x" "7" `,
		},
		{
			name:      "Empty",
			arguments: map[string]any{},
			delimiter: "; ",
			expected:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, FlatArgs(tt.arguments, tt.delimiter))
		})
	}
}

func TestListArgs(t *testing.T) {
	out := ListArgs(map[string]any{"b": 2, "a": "one"})
	require.Equal(t, []string{"a=one", "b=2"}, out)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		value    string
		expected time.Duration
		wantErr  bool
	}{
		{value: "00:00:03", expected: 3 * time.Second},
		{value: "01:30:00", expected: 90 * time.Minute},
		{value: "48:00:00", expected: 48 * time.Hour},
		{value: "00:61:00", wantErr: true},
		{value: "3s", wantErr: true},
		{value: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			d, err := ParseDuration(tt.value)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.expected, d)
		})
	}
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "01:02:03", FormatDuration(time.Hour+2*time.Minute+3*time.Second))
	require.Equal(t, "00:00:00", FormatDuration(0))
}
