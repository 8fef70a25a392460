package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewJSON verifies the json handler output.
func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Debug("state", "state", "applying")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "state", line["msg"])
	assert.Equal(t, "applying", line["state"])
}

// TestNewFiltersBelowLevel verifies that records below the level are dropped.
func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

// TestNewRejectsUnknown verifies errors for unknown levels and formats.
func TestNewRejectsUnknown(t *testing.T) {
	_, err := New(Config{Level: "loud"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Format: "xml"}, nil)
	assert.Error(t, err)
}

// TestParseLevel checks level names.
func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"INFO":    slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
