package infra

import (
	"context"
	"fmt"
	"time"

	"storepilot/internal/config"
	"storepilot/internal/logger"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// OpenDatabase 按配置打开数据库连接
// driver: postgres（生产）或 sqlite（本地开发与测试，纯 Go 驱动）
func OpenDatabase(cfg *config.DatabaseConfig, level gormLogger.LogLevel) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "postgres":
		dialector = postgres.Open(cfg.GetDSN())
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = "storepilot.db"
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s (可选: postgres, sqlite)", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(level, 200*time.Millisecond),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库连接失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 SQL DB 失败: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite 单写者
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("数据库连接测试失败: %w", err)
	}

	logger.Info("数据库连接成功",
		zap.String("driver", dialector.Name()),
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
	)
	return db, nil
}

// LogLevelFor 将应用日志级别映射为 GORM 日志级别
func LogLevelFor(level string) gormLogger.LogLevel {
	switch level {
	case "debug":
		return gormLogger.Info
	case "error":
		return gormLogger.Error
	default:
		return gormLogger.Warn
	}
}

// Migrator 拥有表结构的组件
type Migrator interface {
	AutoMigrate() error
}

// AutoMigrate 依次执行各组件的迁移
func AutoMigrate(components ...Migrator) error {
	logger.Info("开始执行数据库自动迁移")
	for _, c := range components {
		if err := c.AutoMigrate(); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}
	logger.Info("数据库迁移完成")
	return nil
}

// CloseDatabase 关闭数据库连接
func CloseDatabase(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// PingDatabase 数据库健康检查
func PingDatabase(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("数据库未初始化")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
