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

	obscontext "github.com/smallbiznis/clinicsub/internal/observability/context"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("SELECT id FROM subscriptions FOR UPDATE"))
	assert.Equal(t, "UPDATE", operationFromSQL("  update tenants SET status = ?"))
	assert.Equal(t, "INSERT", operationFromSQL("INSERT INTO subscription_logs VALUES (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "subscriptions", tableFromSQL("SELECT id FROM subscriptions WHERE id = ?"))
	assert.Equal(t, "subscription_logs", tableFromSQL(`INSERT INTO "subscription_logs" (id) VALUES (?)`))
	assert.Equal(t, "tenants", tableFromSQL("UPDATE tenants SET status = ? WHERE id = ?"))
	assert.Equal(t, "", tableFromSQL("BEGIN"))
}

func observeGlobal(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func statementFn(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func TestQueryLoggerSkipsRecordNotFound(t *testing.T) {
	logs := observeGlobal(t)
	l := NewQueryLogger(DefaultQueryLogConfig())

	l.Trace(context.Background(), time.Now(), statementFn("SELECT * FROM tenants WHERE id = ?", 0), gormlogger.ErrRecordNotFound)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), time.Now(), statementFn("INSERT INTO subscriptions VALUES (?)", 0), errors.New("constraint failed"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "query failed", entry.Message)
	assert.Equal(t, "gorm", entry.LoggerName)
	assert.Equal(t, "subscriptions", entry.ContextMap()["db_table"])
}

func TestQueryLoggerUsesLockThresholdForLockingReads(t *testing.T) {
	logs := observeGlobal(t)
	l := NewQueryLogger(QueryLogConfig{
		Level:             gormlogger.Warn,
		SlowThreshold:     10 * time.Millisecond,
		LockWaitThreshold: time.Hour,
	})
	begin := time.Now().Add(-50 * time.Millisecond)

	l.Trace(context.Background(), begin, statementFn("SELECT * FROM tenants WHERE id = ? FOR UPDATE", 1), nil)
	assert.Zero(t, logs.Len())

	l.Trace(context.Background(), begin, statementFn("SELECT * FROM tenants WHERE id = ?", 1), nil)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "slow query", logs.All()[0].Message)
}

func TestQueryLoggerCarriesRequestFields(t *testing.T) {
	logs := observeGlobal(t)
	l := NewQueryLogger(QueryLogConfig{Level: gormlogger.Info})
	ctx := obscontext.WithRequestID(context.Background(), "req-9")

	l.Trace(ctx, time.Now(), statementFn("SELECT * FROM subscriptions FOR UPDATE", 1), nil)
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, true, fields["row_lock"])

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), statementFn("SELECT 1", 1), errors.New("boom"))
	assert.Equal(t, 1, logs.Len())
}
