package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestWithContextReturnsAttachedLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).With().Str("request_id", "abc123").Logger()
	ctx := NewContext(context.Background(), &l)

	WithContext(ctx).Info().Msg("hello")

	assert.Contains(t, buf.String(), `"request_id":"abc123"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)
}

func TestWithContextFallsBackToGlobal(t *testing.T) {
	assert.Same(t, Get(), WithContext(context.Background()))
	assert.Same(t, Get(), WithContext(nil))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}
