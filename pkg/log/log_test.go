package log

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLazyWith(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	lazy := NewLazyWith(core, []zapcore.Field{zap.String("k", "v")})
	assert.Same(t, core, NewLazyWith(core, nil))

	lg := zap.New(lazy)
	lg.Debug("dropped")
	lg.Info("kept", zap.Int("n", 1))
	lg.With(zap.String("extra", "x")).Warn("nested")
	require.NoError(t, lazy.Sync())

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "kept", entries[0].Message)
	assert.Equal(t, map[string]any{"k": "v", "n": int64(1)}, entries[0].ContextMap())
	assert.Equal(t, map[string]any{"k": "v", "extra": "x"}, entries[1].ContextMap())
}

func TestBinder(t *testing.T) {
	var b Binder
	assert.NotNil(t, b.Logger())

	core, logs := observer.New(zapcore.DebugLevel)
	bound := &MLogger{Logger: zap.New(core)}
	b.SetLogger(bound)
	assert.Same(t, bound, b.Logger())

	ctx := b.Attach(context.Background())
	assert.Same(t, bound, Ctx(ctx))
	Ctx(ctx).Info("through ctx")
	assert.Equal(t, 1, logs.FilterMessage("through ctx").Len())

	assert.Equal(t, ctx, WithCtxLogger(ctx, nil))
}

func TestRatedLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	lg := (&MLogger{Logger: zap.New(core)}).WithRateGroup("test.rated", 0.0001, 1)

	assert.True(t, lg.RatedWarn(1, "first"))
	assert.False(t, lg.RatedWarn(1, "second"))
	assert.Equal(t, 1, logs.Len())

	plain := &MLogger{Logger: zap.New(core)}
	assert.True(t, plain.RatedError(1, "unlimited"))
}

func TestInitTestLogger(t *testing.T) {
	lg, props, err := InitTestLogger(t, &Config{Level: "info"})
	require.NoError(t, err)
	require.NotNil(t, props)
	lg.Info("visible in test output", FieldModule("log"), FieldContainer("scenes/a.scene"))
	assert.False(t, props.Level.Enabled(zapcore.DebugLevel))

	_, _, err = InitTestLogger(t, &Config{Level: "loud"})
	assert.Error(t, err)
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := WithCtxLogger(context.Background(), &MLogger{Logger: zap.New(core)})
	ctx = WithModule(ctx, "keeper")
	ctx = WithTraceID(ctx, "t-1")
	Ctx(ctx).Info("hello")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, map[string]any{"module": "keeper", "traceID": "t-1"}, logs.All()[0].ContextMap())
}

func TestInitLoggerWithWriteSyncer(t *testing.T) {
	var buf bytes.Buffer
	lg, props, err := InitLoggerWithWriteSyncer(&Config{Level: "warn", Format: FormatJSON, DisableTimestamp: true}, zapcore.AddSync(&buf))
	require.NoError(t, err)
	lg.Info("quiet")
	lg.Warn("loud", FieldModule("store"))
	assert.NotContains(t, buf.String(), "quiet")
	assert.Contains(t, buf.String(), `"msg":"loud"`)
	assert.Contains(t, buf.String(), `"module":"store"`)

	props.Level.SetLevel(zapcore.DebugLevel)
	lg.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	ctx := WithCtxLogger(context.Background(), &MLogger{Logger: zap.New(core)})
	ctx = WithFields(ctx, zap.String("container", "scenes/a.scene"), zap.Int("roots", 2))
	Ctx(ctx).Debug("captured")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, map[string]any{"container": "scenes/a.scene", "roots": int64(2)}, logs.All()[0].ContextMap())

	// 无绑定 Logger 时退回全局 Logger。
	assert.NotNil(t, Ctx(WithFields(context.Background(), zap.String("k", "v"))).Logger)
	assert.NotNil(t, S())
}
