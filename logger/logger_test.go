package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestLogLevelMapping(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, LogLevel("debug").zapLevel())
	assert.Equal(t, zapcore.WarnLevel, LogLevel("WARN").zapLevel())
	assert.Equal(t, zapcore.ErrorLevel, ErrorLevel.zapLevel())
	assert.Equal(t, zapcore.InfoLevel, LogLevel("verbose").zapLevel())
}

func TestBuild_WithFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "jukebox.log")
	l := build(Config{Level: DebugLevel, OutputPath: path, MaxSize: 1})

	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	l.Info("hello", ErrorField(errors.New("boom")))
	assert.FileExists(t, path)
}

func TestHelpersAreSafeBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("not initialised", String("k", "v"), Int("n", 1))
		Sync()
	})
}

func TestDomainFields(t *testing.T) {
	assert.Equal(t, "entryId", EntryID("e1").Key)
	assert.Equal(t, "e1", EntryID("e1").String)
	assert.Equal(t, "client", ClientID("c1").Key)
}
