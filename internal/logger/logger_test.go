package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesJSONToStdoutSink(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(Config{}, zapcore.AddSync(&buf))

	log.Info("build finished", zap.Int("chunks", 3))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "build finished", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(3), entry["chunks"])
	assert.Contains(t, entry, "timestamp")
}

func TestNew_DebugLevelOnlyInDebugMode(t *testing.T) {
	var quiet bytes.Buffer
	newWithWriter(Config{}, zapcore.AddSync(&quiet)).Debug("hidden")
	assert.Empty(t, quiet.String())

	var verbose bytes.Buffer
	newWithWriter(Config{Debug: true}, zapcore.AddSync(&verbose)).Debug("shown")
	assert.Contains(t, verbose.String(), "shown")
}

func TestNew_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docchat.log")
	var buf bytes.Buffer
	log := newWithWriter(Config{FilePath: path}, zapcore.AddSync(&buf))

	log.Warn("skipped document", zap.String("source", "docs/broken.pdf"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "docs/broken.pdf")
}
