package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newObservedLogger(level logger.LogLevel) (*ZapGormLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return NewZapGormLogger(zap.New(core), level, true, 50*time.Millisecond), logs
}

func TestTraceLogsErrorsWithSpan(t *testing.T) {
	l, logs := newObservedLogger(logger.Warn)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1},
		SpanID:  trace.SpanID{2},
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("boom"))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "gorm.query", entry.Message)
	require.Equal(t, sc.TraceID().String(), entry.ContextMap()["trace_id"])
}

func TestTraceSkipsExpectedErrors(t *testing.T) {
	l, logs := newObservedLogger(logger.Warn)

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gorm.ErrRecordNotFound)
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "INSERT", 0 }, gorm.ErrDuplicatedKey)

	require.Equal(t, 0, logs.Len())
}

func TestTraceSlowQuery(t *testing.T) {
	l, logs := newObservedLogger(logger.Warn)

	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT 1", 1 }, nil)

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "gorm.slow_query", logs.All()[0].Message)
}

func TestTraceSilent(t *testing.T) {
	l, logs := newObservedLogger(logger.Silent)
	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, errors.New("boom"))
	require.Equal(t, 0, logs.Len())
}
