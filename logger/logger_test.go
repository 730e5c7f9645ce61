package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWritesDebug(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Debug("hello", zap.String("log", "test/orders"))
	require.NoError(t, l.Sync())
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "test/orders")
}

func TestConfigJSON(t *testing.T) {
	var buf bytes.Buffer
	c := NewConfig()
	c.Format = "json"
	l, err := c.New(&buf)
	require.NoError(t, err)

	l.Debug("dropped")
	l.Info("kept")
	require.NoError(t, l.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
}

func TestConfigUnknownFormat(t *testing.T) {
	c := Config{Format: "xml", Level: zapcore.InfoLevel}
	_, err := c.New(&bytes.Buffer{})
	require.Error(t, err)
}
