// Package config 提供 TOML 配置加载、环境变量覆盖与校验
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config 基础配置结构
type Config struct {
	// 服务名称
	ServiceName string `mapstructure:"service_name"`
	// 服务版本
	Version string `mapstructure:"version"`
	// 环境：dev, staging, prod
	Environment string `mapstructure:"environment"`
	// HTTP 服务配置
	HTTP HTTPConfig `mapstructure:"http"`
	// 数据库配置
	Database DatabaseConfig `mapstructure:"database"`
	// Redis 配置
	Redis RedisConfig `mapstructure:"redis"`
	// Kafka 配置
	Kafka KafkaConfig `mapstructure:"kafka"`
	// 日志配置
	Logger LoggerConfig `mapstructure:"logger"`
	// 追踪配置
	Tracing TracingConfig `mapstructure:"tracing"`
	// 指标配置
	Metrics MetricsConfig `mapstructure:"metrics"`
	// 限流配置
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	// 鉴权配置
	Auth AuthConfig `mapstructure:"auth"`
	// 结算配置
	Checkout CheckoutConfig `mapstructure:"checkout"`
	// 数字商品下载配置
	Download DownloadConfig `mapstructure:"download"`
	// 会员配置
	Membership MembershipConfig `mapstructure:"membership"`
	// 通知配置
	Notification NotificationConfig `mapstructure:"notification"`
	// 公司信息
	Company CompanyConfig `mapstructure:"company"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动：mysql, postgres, sqlite
	Driver             string `mapstructure:"driver"`
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime    int    `mapstructure:"conn_max_lifetime"`
	LogEnabled         bool   `mapstructure:"log_enabled"`
	SlowQueryThreshold int    `mapstructure:"slow_query_threshold"`
	// 启动时自动迁移表结构
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	MaxPoolSize  int    `mapstructure:"max_pool_size"`
	ConnTimeout  int    `mapstructure:"conn_timeout"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers      []string `mapstructure:"brokers"`
	MaxRetries   int      `mapstructure:"max_retries"`
	RetryBackoff int      `mapstructure:"retry_backoff"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	WithCaller bool   `mapstructure:"with_caller"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	CollectorEndpoint string  `mapstructure:"collector_endpoint"`
	SamplingRate      float64 `mapstructure:"sampling_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// 每秒允许的请求数
	QPS   int `mapstructure:"qps"`
	Burst int `mapstructure:"burst"`
}

// AuthConfig JWT 鉴权配置，令牌由外部认证服务签发
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
	// 匿名会话 cookie 名称
	SessionCookie string `mapstructure:"session_cookie"`
	// 会话购物车过期时间（小时）
	SessionTTLHours int `mapstructure:"session_ttl_hours"`
}

// CheckoutConfig 结算定价参数
type CheckoutConfig struct {
	// 统一税率，如 0.05
	TaxRate string `mapstructure:"tax_rate"`
	// 免运费门槛
	FreeShippingThreshold string `mapstructure:"free_shipping_threshold"`
	// 固定运费
	FlatShipping string `mapstructure:"flat_shipping"`
	Currency     string `mapstructure:"currency"`
}

// DownloadConfig 下载授权默认值
type DownloadConfig struct {
	ValidityDays int `mapstructure:"validity_days"`
	// 0 表示不限次数
	MaxDownloads int `mapstructure:"max_downloads"`
	// 本地数字文件根目录
	MediaRoot string `mapstructure:"media_root"`
}

// MembershipConfig 会员配置
type MembershipConfig struct {
	TermDays     int    `mapstructure:"term_days"`
	BasicPrice   string `mapstructure:"basic_price"`
	PremiumPrice string `mapstructure:"premium_price"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	// 驱动：log, smtp, kafka
	Driver   string `mapstructure:"driver"`
	From     string `mapstructure:"from"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	SMTPUser string `mapstructure:"smtp_user"`
	SMTPPass string `mapstructure:"smtp_pass"`
	Topic    string `mapstructure:"topic"`
	// 邮件内链接的站点地址
	SiteURL string `mapstructure:"site_url"`
}

// CompanyConfig 公司信息，进程内只读
type CompanyConfig struct {
	Name        string `mapstructure:"name" json:"name"`
	Phone       string `mapstructure:"phone" json:"phone"`
	Email       string `mapstructure:"email" json:"email"`
	Address     string `mapstructure:"address" json:"address"`
	Description string `mapstructure:"description" json:"description"`
}

// Load 从 TOML 文件加载配置，支持环境变量覆盖
func Load(configPath string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// LoadWithDefaults 从 TOML 文件加载配置，文件不存在时仅使用默认值
func LoadWithDefaults(configPath string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	// 读取配置文件（如果不存在则忽略）
	_ = v.ReadInConfig()

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	// 环境变量前缀 APP，使用 _ 替代 .
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}
	if c.Database.DSN == "" && c.Database.Driver != "sqlite" {
		return fmt.Errorf("database DSN is required for %s driver", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Download.ValidityDays <= 0 {
		return fmt.Errorf("download.validity_days must be positive, got %d", c.Download.ValidityDays)
	}
	if c.Download.MaxDownloads < 0 {
		return fmt.Errorf("download.max_downloads must not be negative, got %d", c.Download.MaxDownloads)
	}
	if c.Membership.TermDays <= 0 {
		return fmt.Errorf("membership.term_days must be positive, got %d", c.Membership.TermDays)
	}
	switch c.Notification.Driver {
	case "log", "smtp", "kafka":
	default:
		return fmt.Errorf("unsupported notification driver: %s", c.Notification.Driver)
	}
	return nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("service_name", "storefront")
	v.SetDefault("environment", "dev")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 30)
	v.SetDefault("http.write_timeout", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.log_enabled", false)
	v.SetDefault("database.slow_query_threshold", 1000)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_pool_size", 10)
	v.SetDefault("redis.conn_timeout", 5)
	v.SetDefault("redis.read_timeout", 3)
	v.SetDefault("redis.write_timeout", 3)

	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output", "stdout")
	v.SetDefault("logger.file_path", "logs/app.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 10)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.with_caller", true)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.collector_endpoint", "localhost:4317")
	v.SetDefault("tracing.sampling_rate", 1.0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.qps", 20)
	v.SetDefault("rate_limit.burst", 40)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "storefront")
	v.SetDefault("auth.session_cookie", "sid")
	v.SetDefault("auth.session_ttl_hours", 24*14)

	v.SetDefault("checkout.tax_rate", "0.05")
	v.SetDefault("checkout.free_shipping_threshold", "100.00")
	v.SetDefault("checkout.flat_shipping", "15.00")
	v.SetDefault("checkout.currency", "CAD")

	v.SetDefault("download.validity_days", 7)
	v.SetDefault("download.max_downloads", 0)
	v.SetDefault("download.media_root", "media")

	v.SetDefault("membership.term_days", 30)
	v.SetDefault("membership.basic_price", "0.00")
	v.SetDefault("membership.premium_price", "20.00")

	v.SetDefault("notification.driver", "log")
	v.SetDefault("notification.from", "no-reply@example.com")
	v.SetDefault("notification.smtp_port", 587)
	v.SetDefault("notification.topic", "storefront.notifications")
	v.SetDefault("notification.site_url", "http://localhost:8080")
}

// GetEnv 获取环境变量，支持默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
