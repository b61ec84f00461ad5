package logger

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, parseLevel(in), "level %q", in)
	}
}

func TestNew_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagext.log")
	log, err := New(Config{Level: "debug", File: path, Development: true})
	require.NoError(t, err)

	log.With(String("component", "test")).Info("hello", Int("n", 1))
	_ = log.Sync()
	assert.FileExists(t, path)
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Error("ignored", Error(assert.AnError))
	assert.NotNil(t, log.With(Bool("x", true)))
}
