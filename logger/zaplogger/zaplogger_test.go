package zaplogger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/get-eventually/go-journal/logger"
	"github.com/get-eventually/go-journal/logger/zaplogger"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := zaplogger.Wrap(zap.New(core))

	logger.Debug(l, "debug", logger.With("stream", "a"))
	logger.Info(l, "info")
	logger.Warn(l, "warn", logger.Err(errors.New("boom")))
	logger.Error(l, "error")

	entries := logs.AllUntimed()
	assert.Len(t, entries, 4)

	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "a", entries[0].ContextMap()["stream"])

	assert.Equal(t, zapcore.WarnLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["err"])

	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestNilLoggerIsSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		logger.Info(nil, "nothing happens")
	})
}
