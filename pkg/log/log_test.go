package log_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"

	"github.com/snehendu098/ghost/clearclient/pkg/log"
)

type entry struct {
	Level         log.Level
	Message       string
	KeysAndValues []any
}

// recordingLogger keeps every entry in memory.
type recordingLogger struct {
	entries    *[]entry
	kv         []any
	name       string
	callerSkip int
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{entries: &[]entry{}}
}

func (l *recordingLogger) add(level log.Level, msg string, kv []any) {
	*l.entries = append(*l.entries, entry{Level: level, Message: msg, KeysAndValues: kv})
}

func (l *recordingLogger) Debug(msg string, kv ...any) { l.add(log.LevelDebug, msg, kv) }
func (l *recordingLogger) Info(msg string, kv ...any)  { l.add(log.LevelInfo, msg, kv) }
func (l *recordingLogger) Warn(msg string, kv ...any)  { l.add(log.LevelWarn, msg, kv) }
func (l *recordingLogger) Error(msg string, kv ...any) { l.add(log.LevelError, msg, kv) }
func (l *recordingLogger) Fatal(msg string, kv ...any) { l.add(log.LevelFatal, msg, kv) }

func (l *recordingLogger) WithKV(key string, value any) log.Logger {
	cp := *l
	cp.kv = append(append([]any{}, l.kv...), key, value)
	return &cp
}

func (l *recordingLogger) GetAllKV() []any { return l.kv }

func (l *recordingLogger) WithName(name string) log.Logger {
	cp := *l
	cp.name = name
	return &cp
}

func (l *recordingLogger) Name() string { return l.name }

func (l *recordingLogger) AddCallerSkip(skip int) log.Logger {
	l.callerSkip += skip
	return l
}

func (l *recordingLogger) last() entry {
	return (*l.entries)[len(*l.entries)-1]
}

type recordingSER struct {
	events [][]any
	failed bool
}

func (r *recordingSER) TraceID() string { return "trace-1" }
func (r *recordingSER) SpanID() string  { return "span-1" }

func (r *recordingSER) RecordEvent(name string, kv ...any) {
	r.events = append(r.events, append([]any{"msg", name}, kv...))
}

func (r *recordingSER) RecordError(name string, kv ...any) {
	r.failed = true
	r.RecordEvent(name, kv...)
}

func TestFromContext_DefaultsToNoop(t *testing.T) {
	lg := log.FromContext(context.Background())
	_, ok := lg.(log.NoopLogger)
	assert.True(t, ok)
}

func TestSetContextLogger(t *testing.T) {
	ctx := log.SetContextLogger(context.Background(), log.NewZapLogger(log.Config{}))
	_, ok := log.FromContext(ctx).(*log.ZapLogger)
	assert.True(t, ok)

	ctx = trace.ContextWithSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: [16]byte{1},
		SpanID:  [8]byte{1},
	}))
	ctx = log.SetContextLogger(ctx, log.NewZapLogger(log.Config{}))
	_, ok = log.FromContext(ctx).(log.SpanLogger)
	assert.True(t, ok)

	ctx = log.SetContextLogger(context.Background(), nil)
	_, ok = log.FromContext(ctx).(log.NoopLogger)
	assert.True(t, ok)
}

func TestSpanLogger(t *testing.T) {
	inner := newRecordingLogger()
	ser := &recordingSER{}
	lg := log.NewSpanLogger(inner.WithName("session"), ser).WithKV("wallet", "0xabc")

	lg.Info("connected", "attempt", 1)
	got := inner.last()
	assert.Equal(t, log.LevelInfo, got.Level)
	assert.Equal(t, "connected", got.Message)
	assert.Equal(t, []any{"traceId", "trace-1", "spanId", "span-1", "attempt", 1}, got.KeysAndValues)
	assert.Equal(t, []any{"msg", "connected", "level", "info", "component", "session", "wallet", "0xabc", "attempt", 1}, ser.events[0])
	assert.False(t, ser.failed)

	lg.Error("handshake failed", "error", errors.New("boom"))
	assert.Equal(t, log.LevelError, inner.last().Level)
	assert.True(t, ser.failed)
	assert.Equal(t, "session", lg.Name())
}

func TestZapLogger_WritesToExtraWriter(t *testing.T) {
	var buf bytes.Buffer
	lg := log.NewZapLogger(log.Config{Format: "logfmt", Level: log.LevelInfo}, zapcore.AddSync(&buf))

	lg.WithName("rpc").WithKV("method", "ping").Info("call completed", "id", 7)
	lg.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, `msg="call completed"`)
	assert.Contains(t, out, "method=ping")
	assert.Contains(t, out, "id=7")
	assert.Contains(t, out, "logger=rpc")
	assert.NotContains(t, out, "hidden")

	buf.Reset()
	lg.WithName("sdk").WithName("ledger").Warn("refresh failed")
	assert.Contains(t, buf.String(), "logger=sdk.ledger")
}

func TestZapLogger_WithKVDoesNotShareState(t *testing.T) {
	base := log.NewZapLogger(log.Config{}).WithKV("a", 1)
	left := base.WithKV("b", 2)
	right := base.WithKV("c", 3)

	assert.Equal(t, []any{"a", 1, "b", 2}, left.GetAllKV())
	assert.Equal(t, []any{"a", 1, "c", 3}, right.GetAllKV())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    log.Level
		wantErr bool
	}{
		{in: "DEBUG", want: log.LevelDebug},
		{in: " info ", want: log.LevelInfo},
		{in: "warning", want: log.LevelWarn},
		{in: "trace", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := log.ParseLevel(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
