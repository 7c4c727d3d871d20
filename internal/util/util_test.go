package util

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger_LevelOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	require.NoError(t, InitLogger("development"))

	l := ComponentLogger("service.quotation")
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	t.Setenv("LOG_LEVEL", "loud")
	assert.Error(t, InitLogger("development"))
}

func TestRecordError_PassesErrorThrough(t *testing.T) {
	_, span := StartSpan(context.Background(), "test")
	defer span.End()

	assert.NoError(t, RecordError(span, nil))

	err := errors.New("boom")
	assert.Same(t, err, RecordError(span, err))
}
