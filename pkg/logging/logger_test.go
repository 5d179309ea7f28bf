package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(buf *bytes.Buffer) *Logger {
	return &Logger{logger: zerolog.New(buf)}
}

func TestLogger_KeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	l.Info("price emitted", "asset", "BTC", "sources", 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "price emitted", entry["message"])
	assert.Equal(t, "BTC", entry["asset"])
	assert.Equal(t, float64(3), entry["sources"])
}

func TestLogger_SkipsNonStringKeys(t *testing.T) {
	var buf bytes.Buffer
	l := captureLogger(&buf)

	l.Warn("odd fields", 42, "dropped", "asset", "ETH")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ETH", entry["asset"])
	assert.NotContains(t, entry, "42")
}

func TestInit_UnknownLevelFallsBack(t *testing.T) {
	l, err := Init("loud", "json", "stdout")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestInit_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.log")
	l, err := Init("debug", "json", path)
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.FileExists(t, path)
}

func TestNewNoopLogger_Discards(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNoopLogger().Error("nobody hears this", "asset", "BTC")
	})
}
