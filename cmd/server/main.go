package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"storepilot/api"
	"storepilot/internal/config"
	"storepilot/internal/infra"
	"storepilot/internal/logger"
	"storepilot/internal/metrics"
	"storepilot/internal/worker"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 通过 -ldflags 注入
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// 0. 统一加载 .env，便于集中管理 APP_* 环境变量
	loadEnvFile()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "dev"
	}

	// 1. 加载配置
	cfg, err := config.Load(env, os.Getenv("APP_CONFIG_PATH"))
	if err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.String("env", env),
		zap.String("mode", cfg.Server.Mode),
		zap.String("version", version),
	)
	metrics.RecordBuildInfo(version, runtime.Version(), commit)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 3. 初始化数据库
	db, err := infra.OpenDatabase(&cfg.Database, infra.LogLevelFor(cfg.Log.Level))
	if err != nil {
		logger.Fatal("初始化数据库失败", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		if err := metrics.RegisterDBStats(nil, sqlDB); err != nil {
			logger.Warn("注册连接池指标失败", zap.Error(err))
		}
	}

	// 4. Redis 可选：不可用时关闭分布式锁与异步调度
	rdb, err := infra.NewRedis(ctx, &cfg.Redis)
	if err != nil {
		logger.Warn("Redis 不可用，调度锁与异步任务已禁用", zap.Error(err))
		rdb = nil
	}

	// 5. 组装服务与路由
	container, err := api.NewAppContainer(cfg, db, rdb)
	if err != nil {
		logger.Fatal("初始化应用容器失败", zap.Error(err))
	}
	router := api.SetupRouter(container)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器启动", zap.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP 服务器启动失败", zap.Error(err))
		}
	}()

	// 6. 调度 Worker 与周期任务
	var (
		workerServer *worker.Server
		periodic     *worker.Periodic
	)
	if cfg.Scheduler.Enabled && rdb != nil {
		redisOpt := infra.AsynqRedisOpt(&cfg.Redis)
		workerServer = worker.NewServer(redisOpt, container.Scheduler, logger.Named("worker"))
		if err := workerServer.Start(); err != nil {
			logger.Fatal("Worker 服务器启动失败", zap.Error(err))
		}
		periodic, err = worker.NewPeriodic(redisOpt, cfg.Scheduler, logger.Named("periodic"))
		if err != nil {
			logger.Fatal("注册周期任务失败", zap.Error(err))
		}
		if err := periodic.Start(); err != nil {
			logger.Fatal("周期任务启动失败", zap.Error(err))
		}
	} else {
		logger.Info("自动化调度未启动", zap.Bool("enabled", cfg.Scheduler.Enabled), zap.Bool("redis", rdb != nil))
	}

	// 7. 优雅关闭
	gracefulShutdown(server, workerServer, periodic, container, rdb)
	stop()
}

// loadEnvFile 加载 APP_ENV_FILE 指定的文件，未指定时向上查找 .env
func loadEnvFile() {
	path := os.Getenv("APP_ENV_FILE")
	if path == "" {
		path = findEnvFile()
	}
	if path == "" {
		fmt.Println("未找到 .env 文件，仅使用系统环境变量与 config/*.yaml")
		return
	}
	if err := godotenv.Load(path); err != nil {
		fmt.Printf("加载环境变量文件 %s 失败: %v\n", path, err)
		return
	}
	fmt.Printf("已加载环境变量文件: %s\n", path)
}

// findEnvFile 从工作目录向上查找 .env，到包含 go.mod 的目录为止
func findEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// gracefulShutdown 优雅关闭
func gracefulShutdown(server *http.Server, workerServer *worker.Server, periodic *worker.Periodic, container *api.AppContainer, rdb redis.UniversalClient) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if periodic != nil {
		periodic.Shutdown()
	}
	if workerServer != nil {
		workerServer.Shutdown()
	}

	container.Close()
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logger.Error("Redis 关闭异常", zap.Error(err))
		}
	}
	if err := infra.CloseDatabase(container.DB); err != nil {
		logger.Error("数据库关闭异常", zap.Error(err))
	}

	logger.Info("服务器已安全关闭")
}
