package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eTEats_web/config"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(config.LogConfig{Level: config.Level(zerolog.InfoLevel)}, &buf)

	gw := Component(log, "gateway")
	gw.Info().Str("backend", "sqlite").Msg("connected")
	log.Debug().Msg("hidden")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "connected", entry["message"])
	assert.Equal(t, "gateway", entry["component"])
	assert.Equal(t, "sqlite", entry["backend"])
	assert.Equal(t, "recipes", entry["app"])
	assert.Equal(t, "info", entry["level"])
}
