package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// auditCore routes entries from audit loggers to the full core and everything
// else through the sampler. Webhook and lifecycle entries are never dropped.
type auditCore struct {
	full    zapcore.Core
	sampled zapcore.Core
	names   []string
}

func newAuditCore(full, sampled zapcore.Core, names []string) zapcore.Core {
	if len(names) == 0 {
		return sampled
	}
	return &auditCore{full: full, sampled: sampled, names: names}
}

func (c *auditCore) Enabled(level zapcore.Level) bool {
	return c.full.Enabled(level)
}

func (c *auditCore) With(fields []zapcore.Field) zapcore.Core {
	return &auditCore{
		full:    c.full.With(fields),
		sampled: c.sampled.With(fields),
		names:   c.names,
	}
}

func (c *auditCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.isAudit(entry.LoggerName) {
		return c.full.Check(entry, checked)
	}
	return c.sampled.Check(entry, checked)
}

func (c *auditCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	return c.full.Write(entry, fields)
}

func (c *auditCore) Sync() error {
	return c.full.Sync()
}

func (c *auditCore) isAudit(loggerName string) bool {
	for _, name := range c.names {
		if loggerName == name || strings.HasPrefix(loggerName, name+".") {
			return true
		}
	}
	return false
}
