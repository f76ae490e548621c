package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// QueryLogConfig tunes which statements reach the log.
type QueryLogConfig struct {
	Level gormlogger.LogLevel
	// SlowThreshold marks plain statements as slow.
	SlowThreshold time.Duration
	// LockWaitThreshold applies to SELECT ... FOR UPDATE, which the create and
	// webhook paths use to serialize per tenant and per subscription.
	LockWaitThreshold time.Duration
}

// DefaultQueryLogConfig logs failures and slow statements only.
func DefaultQueryLogConfig() QueryLogConfig {
	return QueryLogConfig{
		Level:             gormlogger.Warn,
		SlowThreshold:     250 * time.Millisecond,
		LockWaitThreshold: time.Second,
	}
}

// QueryLogger routes gorm output through the request-scoped zap logger so SQL
// lines carry the same request and tenant fields as the handler logs.
type QueryLogger struct {
	cfg QueryLogConfig
}

func NewQueryLogger(cfg QueryLogConfig) *QueryLogger {
	return &QueryLogger{cfg: cfg}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.cfg.Level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *QueryLogger) message(ctx context.Context, min gormlogger.LogLevel, level zapcore.Level, msg string, data []interface{}) {
	if l.cfg.Level < min {
		return
	}
	if len(data) > 0 {
		msg = fmt.Sprintf(msg, data...)
	}
	if ce := l.logger(ctx).Check(level, msg); ce != nil {
		ce.Write()
	}
}

// Trace is called once per statement. Record-not-found is expected on every
// lookup path and is never logged.
func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.cfg.Level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	if failed {
		if l.cfg.Level >= gormlogger.Error {
			l.statement(ctx, zapcore.ErrorLevel, "query failed", fc, elapsed, err)
		}
		return
	}

	if l.cfg.Level >= gormlogger.Warn {
		sql, rows := fc()
		threshold := l.cfg.SlowThreshold
		msg := "slow query"
		if isLockingRead(sql) {
			threshold = l.cfg.LockWaitThreshold
			msg = "slow locking read"
		}
		if threshold > 0 && elapsed > threshold {
			l.statement(ctx, zapcore.WarnLevel, msg, func() (string, int64) { return sql, rows }, elapsed, nil)
			return
		}
	}
	if l.cfg.Level >= gormlogger.Info {
		l.statement(ctx, zapcore.DebugLevel, "query", fc, elapsed, nil)
	}
}

// ParamsFilter drops bound values; provider payloads and tax documents travel as parameters.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func (l *QueryLogger) statement(ctx context.Context, level zapcore.Level, msg string, fc func() (string, int64), elapsed time.Duration, err error) {
	ce := l.logger(ctx).Check(level, msg)
	if ce == nil {
		return
	}
	sql, rows := fc()
	sql = strings.TrimSpace(sql)
	fields := []zap.Field{
		zap.String("sql", sql),
		zap.String("db_operation", operationFromSQL(sql)),
		zap.String("db_table", tableFromSQL(sql)),
		zap.Duration("elapsed", elapsed),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	if isLockingRead(sql) {
		fields = append(fields, zap.Bool("row_lock", true))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

func (l *QueryLogger) logger(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L().Named("gorm"))
}

func isLockingRead(sql string) bool {
	return strings.Contains(strings.ToUpper(sql), " FOR UPDATE")
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "UNKNOWN"
}

// tableFromSQL returns the first table named after FROM, INTO or UPDATE.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i+1 < len(tokens); i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			return strings.Trim(tokens[i+1], "`\"();")
		}
	}
	return ""
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
