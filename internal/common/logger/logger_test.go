package logger

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewWithOptions_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agribot.log")

	zl := NewWithOptions(Options{
		Level:      "info",
		Format:     "json",
		Output:     "file",
		FilePath:   path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	log := NewZapAdapter(zl)

	log.With(map[string]interface{}{"userId": "u-1"}).Info("conversation started", map[string]interface{}{
		"conversationId": 42,
	})
	log.Debug("dropped below level", nil)
	require.NoError(t, zl.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "conversation started")
	assert.Contains(t, content, `"userId":"u-1"`)
	assert.Contains(t, content, `"conversationId":42`)
	assert.False(t, strings.Contains(content, "dropped below level"))
}

func TestNewWithOptions_StdoutFallsBackToPlainLogger(t *testing.T) {
	zl := NewWithOptions(Options{Level: "warn", Format: "console", Output: "stdout"})
	require.NotNil(t, zl)
	assert.False(t, zl.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, zl.Core().Enabled(zapcore.WarnLevel))
}

func TestWrapper_ChainsFields(t *testing.T) {
	log := NewTestLogger(t)

	scoped := log.WithFields(map[string]interface{}{"taskType": "analyze-message"}).
		WithError(errors.New("boom"))
	scoped.Warn("scoped logger works", map[string]interface{}{"attempt": 1})
	scoped.Error("still works", nil)

	NewNoOpLogger().Info("nothing", nil)
}

func TestMapToZapFields(t *testing.T) {
	assert.Nil(t, mapToZapFields(nil))
	assert.Len(t, mapToZapFields(map[string]interface{}{"a": 1, "b": "two"}), 2)
}
