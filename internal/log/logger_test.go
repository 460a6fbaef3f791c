package log

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("development", ""))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("production", ""))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("production", "WARN"))
	assert.Equal(t, zerolog.ErrorLevel, parseLevel("development", " error "))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("production", "verbose"))
}

func TestNewWithWriterTagsService(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "production", "info")
	logger.Info().Msg("ready")

	out := buf.String()
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "santrack-dashboard")
	assert.Contains(t, out, "production")
}
