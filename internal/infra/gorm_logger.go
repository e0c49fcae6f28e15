package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storepilot/internal/logger"

	"go.uber.org/zap"
	gormLogger "gorm.io/gorm/logger"
)

const maxLoggedSQL = 2048

// GormLogger 把 GORM 日志写入 zap，并带上请求上下文中的 trace_id / user_id
type GormLogger struct {
	component     string
	level         gormLogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger 创建 GORM 日志适配器；记录未找到不视为错误
func NewGormLogger(level gormLogger.LogLevel, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{component: "gorm", level: level, slowThreshold: slowThreshold}
}

func (l *GormLogger) LogMode(level gormLogger.LogLevel) gormLogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *GormLogger) log(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx).Named(l.component)
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Info {
		l.log(ctx).Info(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Warn {
		l.log(ctx).Warn(fmt.Sprintf(msg, data...))
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormLogger.Error {
		l.log(ctx).Error(fmt.Sprintf(msg, data...))
	}
}

// Trace 错误总是记录；慢查询在 Warn 级别及以上记录；普通 SQL 仅 Info 级别输出
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormLogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormLogger.ErrRecordNotFound)
	slow := l.slowThreshold > 0 && elapsed > l.slowThreshold

	switch {
	case failed && l.level >= gormLogger.Error:
	case slow && l.level >= gormLogger.Warn:
	case l.level >= gormLogger.Info:
	default:
		return
	}

	sql, rows := fc()
	if len(sql) > maxLoggedSQL {
		sql = sql[:maxLoggedSQL] + "...(truncated)"
	}
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	log := l.log(ctx)
	switch {
	case failed:
		log.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case slow:
		log.Warn("SQL 慢查询", fields...)
	default:
		log.Debug("SQL 执行", fields...)
	}
}
