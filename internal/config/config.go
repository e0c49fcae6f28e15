package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Log       LogConfig       `mapstructure:"log"`
	AI        AIConfig        `mapstructure:"ai"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres, sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 连接模式: standalone(单节点), sentinel(哨兵), cluster(集群)
	Mode string `mapstructure:"mode"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	MasterName       string   `mapstructure:"master_name"`
	SentinelAddrs    []string `mapstructure:"sentinel_addrs"`
	SentinelPassword string   `mapstructure:"sentinel_password"`

	ClusterAddrs []string `mapstructure:"cluster_addrs"`

	PoolSize     int `mapstructure:"pool_size"`
	MinIdleConns int `mapstructure:"min_idle_conns"`
}

// Addr 返回单节点地址
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// AIConfig 命令解释所用的大模型配置
type AIConfig struct {
	Provider         string           `mapstructure:"provider"` // anthropic, openai
	Model            string           `mapstructure:"model"`
	Temperature      float64          `mapstructure:"temperature"`
	MaxTokens        int              `mapstructure:"max_tokens"`
	TimeoutSeconds   int              `mapstructure:"timeout_seconds"`
	MinConfidence    float64          `mapstructure:"min_confidence"`
	MaxContextTokens int              `mapstructure:"max_context_tokens"` // 0 表示不限制
	OpenAI           OpenAIConfig     `mapstructure:"openai"`
	Anthropic        AnthropicConfig  `mapstructure:"anthropic"`
	Cache            ModelCacheConfig `mapstructure:"cache"`
}

// ModelCacheConfig 模型响应缓存
type ModelCacheConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Backend        string        `mapstructure:"backend"` // memory, redis
	TTL            time.Duration `mapstructure:"ttl"`
	Capacity       int           `mapstructure:"capacity"` // 仅 memory
	MaxTemperature float64       `mapstructure:"max_temperature"`
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	OrgID      string `mapstructure:"org_id"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// AnthropicConfig Anthropic 配置
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	MaxRetries int    `mapstructure:"max_retries"`
}

// PlatformConfig 电商平台适配器配置
type PlatformConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchInterval  time.Duration `mapstructure:"batch_interval"`
	CredentialKey  string        `mapstructure:"credential_key"` // base64 编码的 32 字节密钥，为空时令牌按明文读取
	UserAgent      string        `mapstructure:"user_agent"`
	Concurrency    int           `mapstructure:"concurrency"` // 多平台并行数，1 为串行
}

// SchedulerConfig 自动化调度配置
type SchedulerConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Window             time.Duration `mapstructure:"window"`
	ExecutePendingCron string        `mapstructure:"execute_pending_cron"`
	AnalyzeCron        string        `mapstructure:"analyze_cron"`
	HistoryDays        int           `mapstructure:"history_days"`
	HistoryLimit       int           `mapstructure:"history_limit"`
	ApplyThreshold     float64       `mapstructure:"apply_threshold"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
}

// AuthConfig 身份校验配置（仅校验令牌，不负责签发）
type AuthConfig struct {
	JWTSecret          string `mapstructure:"jwt_secret"`
	Issuer             string `mapstructure:"issuer"`
	InterpretPerMinute int    `mapstructure:"interpret_per_minute"` // 每用户解释请求限流，0 表示不限
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // APP_AI_ANTHROPIC_API_KEY

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || configPath != "" {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	globalConfig = &cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 120)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "storepilot.db")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.mode", "standalone")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_path", "stdout")

	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.model", "claude-3-5-sonnet-latest")
	v.SetDefault("ai.temperature", 0.1)
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.timeout_seconds", 60)
	v.SetDefault("ai.min_confidence", 0.5)
	v.SetDefault("ai.cache.enabled", true)
	v.SetDefault("ai.cache.backend", "memory")
	v.SetDefault("ai.cache.ttl", 10*time.Minute)
	v.SetDefault("ai.cache.capacity", 512)
	v.SetDefault("ai.cache.max_temperature", 0.3)

	v.SetDefault("platform.request_timeout", 30*time.Second)
	v.SetDefault("platform.batch_size", 10)
	v.SetDefault("platform.batch_interval", 500*time.Millisecond)
	v.SetDefault("platform.user_agent", "storepilot/1.0")
	v.SetDefault("platform.concurrency", 1)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.window", 5*time.Minute)
	v.SetDefault("scheduler.execute_pending_cron", "@every 5m")
	v.SetDefault("scheduler.analyze_cron", "0 3 * * *")
	v.SetDefault("scheduler.history_days", 30)
	v.SetDefault("scheduler.history_limit", 100)
	v.SetDefault("scheduler.apply_threshold", 0.7)
	v.SetDefault("scheduler.lock_ttl", 10*time.Minute)

	v.SetDefault("auth.issuer", "storepilot")
	v.SetDefault("auth.interpret_per_minute", 30)
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}
