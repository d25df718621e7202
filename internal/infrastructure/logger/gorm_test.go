package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

// observedGormLogger builds a GormLogger over an observer core.
func observedGormLogger(level zapcore.Level, gormLevel gormlogger.LogLevel, opts ...GormLoggerOption) (*GormLogger, *observer.ObservedLogs) {
	core, recorded := observer.New(level)
	return NewGormLogger(zap.New(core), gormLevel, opts...), recorded
}

// queryFunc mimics the callback gorm hands to Trace.
func queryFunc(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestNewGormLogger(t *testing.T) {
	gormLog, _ := observedGormLogger(zapcore.InfoLevel, gormlogger.Info)

	assert.NotNil(t, gormLog)
	assert.Equal(t, gormlogger.Info, gormLog.logLevel)
}

func TestGormLoggerWithOptions(t *testing.T) {
	gormLog, _ := observedGormLogger(zapcore.InfoLevel, gormlogger.Info,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)

	assert.Equal(t, 500*time.Millisecond, gormLog.slowThreshold)
	assert.False(t, gormLog.ignoreRecordNotFoundError)
}

func TestGormLogger_LogMode(t *testing.T) {
	gormLog, _ := observedGormLogger(zapcore.InfoLevel, gormlogger.Info)

	newLogger := gormLog.LogMode(gormlogger.Warn)

	// LogMode copies; the receiver keeps its level.
	assert.Equal(t, gormlogger.Info, gormLog.logLevel)

	newGormLog, ok := newLogger.(*GormLogger)
	require.True(t, ok)
	assert.Equal(t, gormlogger.Warn, newGormLog.logLevel)
}

func TestGormLogger_LevelMethods(t *testing.T) {
	t.Run("info", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.InfoLevel, gormlogger.Info)
		gormLog.Info(context.Background(), "applying %s", "migration")

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Message, "applying migration")
	})

	t.Run("info suppressed when silent", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.InfoLevel, gormlogger.Silent)
		gormLog.Info(context.Background(), "applying migration")

		assert.Empty(t, recorded.All())
	})

	t.Run("warn", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.WarnLevel, gormlogger.Warn)
		gormLog.Warn(context.Background(), "slow rebuild for unit %d", 42)

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Message, "slow rebuild for unit 42")
		assert.Equal(t, zapcore.WarnLevel, logs[0].Level)
	})

	t.Run("error", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.ErrorLevel, gormlogger.Error)
		gormLog.Error(context.Background(), "balance rebuild failed")

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, zapcore.ErrorLevel, logs[0].Level)
	})
}

func TestGormLogger_Trace(t *testing.T) {
	t.Run("query error", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.ErrorLevel, gormlogger.Error)

		gormLog.Trace(context.Background(), time.Now(),
			queryFunc("INSERT INTO ledger_entries DEFAULT VALUES", 0),
			errors.New("connection reset by peer"))

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Message, "SQL Error")
	})

	t.Run("record not found ignored", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.ErrorLevel, gormlogger.Error,
			WithIgnoreRecordNotFoundError(true))

		gormLog.Trace(context.Background(), time.Now(),
			queryFunc("SELECT * FROM unit_balances WHERE unit_id = ?", 0),
			gormlogger.ErrRecordNotFound)

		assert.Empty(t, recorded.All())
	})

	t.Run("slow query warns", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.WarnLevel, gormlogger.Warn,
			WithSlowThreshold(1*time.Nanosecond))

		began := time.Now().Add(-1 * time.Second)
		gormLog.Trace(context.Background(), began,
			queryFunc("SELECT * FROM ledger_entries WHERE tenant_id = ?", 10), nil)

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Message, "SLOW SQL")
	})

	t.Run("normal query", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.DebugLevel, gormlogger.Info)

		gormLog.Trace(context.Background(), time.Now(),
			queryFunc("SELECT * FROM due_allocations WHERE due_entry_id = ?", 5), nil)

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Contains(t, logs[0].Message, "SQL Query")
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.DebugLevel, gormlogger.Silent)

		gormLog.Trace(context.Background(), time.Now(),
			queryFunc("SELECT * FROM due_allocations WHERE due_entry_id = ?", 5), nil)

		assert.Empty(t, recorded.All())
	})

	t.Run("carries request id from context", func(t *testing.T) {
		gormLog, recorded := observedGormLogger(zapcore.DebugLevel, gormlogger.Info)

		ctx := context.WithValue(context.Background(), RequestIDKey, "req-4b8")
		gormLog.Trace(ctx, time.Now(),
			queryFunc("SELECT * FROM due_allocations WHERE due_entry_id = ?", 5), nil)

		logs := recorded.All()
		require.Len(t, logs, 1)

		field := logField(&logs[0], "request_id")
		require.NotNil(t, field, "request_id should be in log fields")
		assert.Equal(t, "req-4b8", field.String)
	})
}

func TestMapGormLogLevel(t *testing.T) {
	for _, tt := range []struct {
		level    string
		expected gormlogger.LogLevel
	}{
		{"silent", gormlogger.Silent},
		{"error", gormlogger.Error},
		{"warn", gormlogger.Warn},
		{"info", gormlogger.Info},
		{"debug", gormlogger.Info},
		{"unknown", gormlogger.Warn},
		{"", gormlogger.Warn},
	} {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, MapGormLogLevel(tt.level))
		})
	}
}

func TestGormLoggerImplementsInterface(t *testing.T) {
	gormLog, _ := observedGormLogger(zapcore.InfoLevel, gormlogger.Info)

	var _ gormlogger.Interface = gormLog
}
