package utilities

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, levelFromString(in), in)
	}
}

func TestInit_WritesRotatedFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "api.log")
	lg, err := Init(Config{Level: "debug", File: file})
	require.NoError(t, err)

	lg.Info("hello", zap.String("k", "v"))
	_ = lg.Sync()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestInit_Dev(t *testing.T) {
	lg, err := Init(Config{Level: "debug", Dev: true})
	require.NoError(t, err)
	assert.True(t, lg.Core().Enabled(zapcore.DebugLevel))
}
