package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(" error "))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("bogus"))
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, closeFn, err := New(Config{Level: "info", Out: &buf})
	require.NoError(t, err)
	defer closeFn()

	sessionLog := Component(log, "session")
	sessionLog.Info().Str("state", "idle").Msg("ready")
	log.Debug().Msg("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "ready", entry["message"])
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "ai_voice", entry["app"])
	assert.Equal(t, "idle", entry["state"])
	assert.Contains(t, entry, "time")
}

func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ai_voice.log")
	var buf bytes.Buffer
	log, closeFn, err := New(Config{Level: "debug", Out: &buf, File: path})
	require.NoError(t, err)

	log.Debug().Msg("to both")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}
