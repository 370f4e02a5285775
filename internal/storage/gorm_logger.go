package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	logx "drumbot/pkg/logx"
)

const slowQuery = 200 * time.Millisecond

// gormLogger adapts logx to gorm's logger.Interface.
type gormLogger struct {
	log   logx.Logger
	level logger.LogLevel
}

func newGormLogger(log logx.Logger, level logger.LogLevel) logger.Interface {
	if log.IsZero() {
		log = logx.Nop()
	}
	return gormLogger{log: log.With(logx.String("sub", "gorm")), level: level}
}

func (l gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	l.level = level
	return l
}

func (l gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		l.log.Debug(fmt.Sprintf(msg, data...))
	}
}

func (l gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		l.log.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		l.log.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace reports failed and slow queries; not-found is a normal outcome.
func (l gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	took := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		l.log.Warn("query failed", logx.String("sql", sql), logx.Int64("rows", rows), logx.Duration("took", took), logx.Err(err))
	case took > slowQuery && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.Warn("slow query", logx.String("sql", sql), logx.Int64("rows", rows), logx.Duration("took", took))
	case l.level >= logger.Info:
		sql, rows := fc()
		l.log.Trace("query", logx.String("sql", sql), logx.Int64("rows", rows), logx.Duration("took", took))
	}
}
