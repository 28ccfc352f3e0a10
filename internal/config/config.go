package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server         ServerConfig
	Log            LogConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	Storage        StorageConfig
	Tracing        TracingConfig `mapstructure:"tracing"`
	Redis          RedisConfig
	AI             AIConfig             `mapstructure:"ai"`
	Generation     GenerationConfig     `mapstructure:"generation"`
	Conversation   ConversationConfig   `mapstructure:"conversation"`
	Document       DocumentConfig       `mapstructure:"document"`
	CORS           CORSConfig           `mapstructure:"cors"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	FirstSuperuser FirstSuperuserConfig `mapstructure:"first_superuser"`

	// 运行时标志（非配置文件，通过命令行参数设置）
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Name string
	Port string
	Mode string
}

type LogConfig struct {
	File string
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
	// 生成类接口调用大模型，单独限流
	GenerationPerMinute int `mapstructure:"generation_per_minute"`
}

// AIConfig 结构化生成引擎使用的模型参数，支持热更新
type AIConfig struct {
	Provider       string  `mapstructure:"provider"`
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	Temperature    float32 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	MaxRetries     int     `mapstructure:"max_retries"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

func (c AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type GenerationConfig struct {
	MinContentLength     int `mapstructure:"min_content_length"`
	MaxQuestions         int `mapstructure:"max_questions"`
	DefaultQuestions     int `mapstructure:"default_questions"`
	MaxSimilar           int `mapstructure:"max_similar"`
	MaxBatch             int `mapstructure:"max_batch"`
	MinInstructionLength int `mapstructure:"min_instruction_length"`
}

type ConversationConfig struct {
	Store     string `mapstructure:"store"` // memory 或 redis
	KeyPrefix string `mapstructure:"key_prefix"`
	// 0 表示永不过期
	TTLMinutes int `mapstructure:"ttl_minutes"`
}

type DocumentConfig struct {
	MaxChars      int   `mapstructure:"max_chars"`
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
	MaxImages     int   `mapstructure:"max_images"`
	ImageMaxSide  int   `mapstructure:"image_max_side"`
}

type DatabaseConfig struct {
	Driver    string // mysql、postgres、sqlite
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
	SSLMode   string `mapstructure:"sslmode"`
	Path      string // sqlite 文件路径
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type StorageConfig struct {
	Type          string `mapstructure:"type"`
	LocalPath     string `mapstructure:"local_path"`
	MinioEndpoint string `mapstructure:"minio_endpoint"`
	MinioAccessID string `mapstructure:"minio_access_key"`
	MinioSecret   string `mapstructure:"minio_secret_key"`
	MinioBucket   string `mapstructure:"minio_bucket"`
	MinioUseSSL   bool   `mapstructure:"minio_use_ssl"`
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type FirstSuperuserConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
}

const defaultSuperuserPassword = "changethis"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "socratic-backend")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")

	v.SetDefault("log.file", "logs/app.log")

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parsetime", true)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "socratic.db")

	v.SetDefault("jwt.expire_hours", 24*8)

	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "uploads")

	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "google/gemini-2.5-pro")
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.max_tokens", 16384)
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.timeout_seconds", 300)

	v.SetDefault("generation.min_content_length", 50)
	v.SetDefault("generation.max_questions", 20)
	v.SetDefault("generation.default_questions", 5)
	v.SetDefault("generation.max_similar", 10)
	v.SetDefault("generation.max_batch", 5)
	v.SetDefault("generation.min_instruction_length", 5)

	v.SetDefault("conversation.store", "memory")
	v.SetDefault("conversation.key_prefix", "refine:conversation:")

	v.SetDefault("document.max_chars", 120000)
	v.SetDefault("document.max_upload_size", 20<<20)
	v.SetDefault("document.max_images", 10)
	v.SetDefault("document.image_max_side", 1568)

	v.SetDefault("rate_limit.max_requests", 100)
	v.SetDefault("rate_limit.window_minutes", 1)
	v.SetDefault("rate_limit.generation_per_minute", 20)

	v.SetDefault("first_superuser.email", "admin@example.com")
	v.SetDefault("first_superuser.password", defaultSuperuserPassword)
}

func LoadConfig(path string) (*Config, error) {
	// .env 只作为环境变量来源，不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SOCRATIC")
	v.AutomaticEnv()
	setDefaults(v)

	// Database
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.host", "DATABASE_HOST")
	v.BindEnv("database.port", "DATABASE_PORT")
	v.BindEnv("database.user", "DATABASE_USER")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("database.dbname", "DATABASE_NAME")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// Server
	v.BindEnv("server.mode", "SERVER_MODE")

	// AI
	v.BindEnv("ai.provider", "AI_PROVIDER")
	v.BindEnv("ai.base_url", "AI_BASE_URL")
	v.BindEnv("ai.api_key", "AI_API_KEY")
	v.BindEnv("ai.model", "AI_MODEL")

	// Storage
	v.BindEnv("storage.type", "STORAGE_TYPE")
	v.BindEnv("storage.minio_endpoint", "MINIO_ENDPOINT")
	v.BindEnv("storage.minio_access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("storage.minio_secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("storage.minio_bucket", "MINIO_BUCKET")

	// Tracing
	v.BindEnv("tracing.enabled", "TRACING_ENABLED")
	v.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	// Conversation store
	v.BindEnv("conversation.store", "CONVERSATION_STORE")

	// Superuser
	v.BindEnv("first_superuser.email", "FIRST_SUPERUSER")
	v.BindEnv("first_superuser.password", "FIRST_SUPERUSER_PASSWORD")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.Storage.Type == "local" {
		if _, err := os.Stat(cfg.Storage.LocalPath); os.IsNotExist(err) {
			os.MkdirAll(cfg.Storage.LocalPath, 0755)
		}
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("ai.max_retries must not be negative, got %d", c.AI.MaxRetries)
	}

	switch c.Conversation.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown conversation store %q", c.Conversation.Store)
	}

	// 生产环境校验密钥强度
	if c.Server.Mode == "release" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(c.JWT.Secret))
		}
		if c.FirstSuperuser.Password == defaultSuperuserPassword {
			return fmt.Errorf("first_superuser.password is %q, change it before running in release mode", defaultSuperuserPassword)
		}
	}

	return nil
}
