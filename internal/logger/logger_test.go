package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output)
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "loud"}, "test")
	require.Error(t, err)
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkflow.log")
	l, err := New(Config{Level: "debug", Format: "json", Output: path}, "pipeline")
	require.NoError(t, err)

	l.WithFields(map[string]any{FieldStage: "upper"}).Debug("stage started")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "pipeline", entry[FieldComponent])
	assert.Equal(t, "upper", entry[FieldStage])
	assert.Equal(t, "stage started", entry["message"])
}

func TestLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunkflow.log")
	l, err := New(Config{Level: "warn", Format: "json", Output: path}, "")
	require.NoError(t, err)

	l.Info("hidden")
	l.WithError(errors.New("disk full")).Error("write failed")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "disk full")
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := FromZerolog(zerolog.New(&buf)).WithComponent("netflow")
	l.Info("listening")
	assert.Contains(t, buf.String(), `"component":"netflow"`)
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("dropped")
	assert.NoError(t, l.Close())
}
