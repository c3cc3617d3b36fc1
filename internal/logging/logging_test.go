package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter("debug", "json", &buf)
	logger.Info().Int("slot", 2).Msg("assigned")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "assigned", line["message"])
	assert.Equal(t, float64(2), line["slot"])
	assert.Equal(t, "info", line["level"])
}

func TestLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter("chatty", "json", &buf)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	logger.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newWithWriter("info", "console", &buf)
	logger.Warn().Msg("sensor degraded")
	assert.Contains(t, buf.String(), "sensor degraded")
}
