package logger

import (
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

type retryableHTTPLogger struct {
	sugar *zap.SugaredLogger
}

// RetryableHTTPLogger adapts zap to the leveled logger used by retryablehttp clients.
// Per-attempt chatter goes to debug.
func RetryableHTTPLogger(log *zap.Logger) retryablehttp.LeveledLogger {
	if log == nil {
		log = zap.NewNop()
	}
	return &retryableHTTPLogger{sugar: log.Sugar()}
}

func (l *retryableHTTPLogger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *retryableHTTPLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *retryableHTTPLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *retryableHTTPLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}
