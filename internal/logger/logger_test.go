package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "prod", "info")

	l.Info().Str("op", "family.add").Msg("member invited")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "member invited", entry["message"])
	assert.Equal(t, "family.add", entry["op"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "prod", "warn")

	l.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	l.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "prod", "loud")

	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
	assert.Contains(t, buf.String(), "invalid log level")
}
