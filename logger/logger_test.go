package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewParsesLevel(t *testing.T) {
	l, err := NewWithWriter(Config{Level: "WARN"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	l, err = NewWithWriter(Config{Level: "error", Debug: true}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())

	_, err = NewWithWriter(Config{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := NewWithWriter(Config{Level: "info"}, &buf)
	require.NoError(t, err)

	cl := WithComponent(l, "pipeline")
	cl.Info().Msg("hello")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "pipeline", line["component"])
	assert.Equal(t, "hello", line["message"])
	assert.Contains(t, line, "time")
}

func TestDefaultConfigReadsEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEBUG", "yes")

	cfg := DefaultConfig()
	assert.Equal(t, "debug", cfg.Level)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "stderr", cfg.Output)
}
