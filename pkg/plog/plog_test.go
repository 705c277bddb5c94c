package plog

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFromString(t *testing.T) {
	testCases := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"notice", LevelNotice},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"NOTICE", LevelNotice},
		{"bogus", LevelNotice},
		{"", LevelNotice},
	}

	for _, tc := range testCases {
		t.Run("input "+tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, LevelFromString(tc.input))
		})
	}
}

func TestNoticeLevelSitsBetweenDebugAndInfo(t *testing.T) {
	assert.Greater(t, LevelNotice, slog.LevelDebug)
	assert.Less(t, LevelNotice, slog.LevelInfo)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(io.Discard)

	SetLevel(slog.LevelWarn)
	defer SetLevel(LevelNotice)

	Info("hidden info")
	Notice("hidden notice")
	Warn("visible warning", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden info")
	assert.NotContains(t, out, "hidden notice")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "key=value")
}
