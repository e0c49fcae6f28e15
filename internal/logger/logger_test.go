package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	ctx := WithTraceID(context.Background(), "req-1")
	ctx = WithUserID(ctx, "user-1")
	ctx = WithCommandID(ctx, "cmd-1")
	FromContext(ctx, base).Info("done")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["trace_id"])
	assert.Equal(t, "user-1", fields["user_id"])
	assert.Equal(t, "cmd-1", fields["command_id"])
}

func TestFromContextWithoutValues(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core)

	FromContext(nil, base).Info("nil ctx")
	FromContext(WithUserID(context.Background(), ""), base).Info("empty user")

	require.Equal(t, 2, logs.Len())
	for _, entry := range logs.All() {
		assert.Empty(t, entry.ContextMap())
	}
}

func TestGetBeforeInit(t *testing.T) {
	mu.Lock()
	prev := globalLogger
	globalLogger = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		globalLogger = prev
		mu.Unlock()
	})

	assert.NotNil(t, Get())
	assert.NotPanics(t, func() { Info("dropped") })
}

func TestBuildLevels(t *testing.T) {
	l, err := Build("warn", "json", "stderr")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = Build("not-a-level", "console", "")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
}
