package api

import (
	"fmt"

	"storepilot/api/handlers/automations"
	"storepilot/api/handlers/commands"
	"storepilot/api/handlers/scheduler"
	"storepilot/internal/auth"
	"storepilot/internal/automation"
	"storepilot/internal/cache"
	"storepilot/internal/command"
	"storepilot/internal/config"
	"storepilot/internal/execution"
	"storepilot/internal/infra"
	"storepilot/internal/infra/queue"
	"storepilot/internal/interpreter"
	"storepilot/internal/logger"
	"storepilot/internal/metrics"
	middlewarepkg "storepilot/internal/middleware"
	"storepilot/internal/platform"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// AppContainer 应用依赖
type AppContainer struct {
	Config      *config.Config
	DB          *gorm.DB
	Redis       redis.UniversalClient // 可选
	Queue       queue.Client          // 可选，依赖 Redis
	Validator   *auth.TokenValidator
	Interpreter *interpreter.Interpreter
	Platforms   *platform.Repository
	Records     *execution.Records
	Engine      *execution.Engine
	Commands    *command.Service
	Automations *automation.Service
	Scheduler   *automation.Scheduler
}

// NewAppContainer 组装业务服务；rdb 为 nil 时调度锁与异步队列关闭
func NewAppContainer(cfg *config.Config, db *gorm.DB, rdb redis.UniversalClient) (*AppContainer, error) {
	adapter, err := platform.NewAdapterFromConfig(cfg.Platform)
	if err != nil {
		return nil, fmt.Errorf("初始化平台适配器失败: %w", err)
	}
	interp, err := interpreter.NewFromConfig(cfg.AI, modelCache(cfg.AI.Cache, rdb))
	if err != nil {
		return nil, fmt.Errorf("初始化命令解释器失败: %w", err)
	}

	platforms := platform.NewRepository(db)
	records := execution.NewRecords(db)
	engine := execution.NewEngine(platforms, adapter,
		execution.WithRecords(records),
		execution.WithPlatformConcurrency(cfg.Platform.Concurrency),
	)
	commands := command.NewService(db, interp, engine)
	automations := automation.NewService(db)

	schedOpts := []automation.SchedulerOption{automation.WithSchedulerConfig(cfg.Scheduler)}
	var queueClient queue.Client
	if rdb != nil {
		schedOpts = append(schedOpts, automation.WithLocker(automation.NewRedisLocker(rdb)))
		queueClient = queue.NewClient(infra.AsynqRedisOpt(&cfg.Redis))
	}

	c := &AppContainer{
		Config:      cfg,
		DB:          db,
		Redis:       rdb,
		Queue:       queueClient,
		Validator:   auth.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, rdb),
		Interpreter: interp,
		Platforms:   platforms,
		Records:     records,
		Engine:      engine,
		Commands:    commands,
		Automations: automations,
		Scheduler:   automation.NewScheduler(db, commands, records, schedOpts...),
	}

	if cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(platforms, records, commands, automations); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// modelCache 选择模型响应缓存后端；配置 redis 但不可用时退回内存
func modelCache(cfg config.ModelCacheConfig, rdb redis.UniversalClient) cache.Store {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Backend == "redis" {
		if rdb != nil {
			return cache.NewRedisStore(rdb)
		}
		logger.Warn("模型缓存配置为 redis 但 Redis 不可用，改用内存缓存")
	}
	return cache.NewLFUCache(cfg.Capacity)
}

// Close 释放容器持有的客户端
func (c *AppContainer) Close() {
	if c.Queue != nil {
		_ = c.Queue.Close()
	}
	if c.Interpreter != nil {
		_ = c.Interpreter.Close()
	}
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Commands    *commands.Handler
	Automations *automations.Handler
	Scheduler   *scheduler.Handler
}

// NewHandlers 创建处理器
func NewHandlers(c *AppContainer) *Handlers {
	var enqueuer scheduler.Enqueuer
	if c.Queue != nil {
		enqueuer = c.Queue
	}
	return &Handlers{
		Commands:    commands.NewHandler(c.Commands),
		Automations: automations.NewHandler(c.Automations),
		Scheduler:   scheduler.NewHandler(c.Scheduler, enqueuer),
	}
}

// SetupRouter 设置并返回 Gin 路由
func SetupRouter(c *AppContainer) *gin.Engine {
	if c.Config.Server.Mode != "" {
		gin.SetMode(c.Config.Server.Mode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middlewarepkg.RequestIDMiddleware())
	router.Use(RequestLogger())
	router.Use(CORS(CORSConfigFromEnv()))
	router.Use(metrics.PrometheusMiddleware())

	router.GET("/health", HealthCheck())
	router.GET("/ready", ReadinessCheck(c.DB, c.Redis))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if c.Config.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret 未配置，所有 /api/v1 请求都将被拒绝")
	}

	RegisterRoutes(router, c, NewHandlers(c))
	return router
}
