package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"

	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Store    StoreConfig    `mapstructure:"store"`
	MongoDB  MongoDBConfig  `mapstructure:"mongodb"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Etcd     EtcdConfig     `mapstructure:"etcd"`
	Shop     ShopConfig     `mapstructure:"shop"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Name string `mapstructure:"name"`
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type TelegramConfig struct {
	Token         string  `mapstructure:"token"`
	AdminChatID   int64   `mapstructure:"admin_chat_id"`
	WebAppURL     string  `mapstructure:"web_app_url"`
	Mode          string  `mapstructure:"mode"`
	WebhookPath   string  `mapstructure:"webhook_path"`
	WebhookURL    string  `mapstructure:"webhook_url"`
	WebhookSecret string  `mapstructure:"webhook_secret"`
	RateLimit     float64 `mapstructure:"rate_limit"`
	RateBurst     int     `mapstructure:"rate_burst"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoDBConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	UserTTL  time.Duration `mapstructure:"user_ttl"`
}

type EtcdConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Prefix      string        `mapstructure:"prefix"`
	SessionTTL  int           `mapstructure:"session_ttl"`
}

// ShopConfig holds storefront presentation settings.
type ShopConfig struct {
	Timezone        string `mapstructure:"timezone"`
	SupportUsername string `mapstructure:"support_username"`
}

type LogConfig struct {
	Level       string   `mapstructure:"level"`
	Encoding    string   `mapstructure:"encoding"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// Load reads configuration from configPath (if not empty), a .env file in the
// working directory (if present) and the process environment.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Bare variable names used by existing .env files.
	_ = v.BindEnv("telegram.token", "BOT_TOKEN", "TELEGRAM_TOKEN")
	_ = v.BindEnv("telegram.admin_chat_id", "ADMIN_CHAT_ID", "TELEGRAM_ADMIN_CHAT_ID")
	_ = v.BindEnv("telegram.web_app_url", "WEB_APP_URL", "TELEGRAM_WEB_APP_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		// Read config file
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "modashop-bot")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("telegram.mode", ModePolling)
	v.SetDefault("telegram.webhook_path", "/telegram/webhook")
	v.SetDefault("telegram.rate_limit", 25)
	v.SetDefault("telegram.rate_burst", 5)

	v.SetDefault("store.driver", DriverMongo)

	v.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("mongodb.database", "modashop")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)

	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.user_ttl", 30*time.Minute)

	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("etcd.prefix", "/modashop/")
	v.SetDefault("etcd.session_ttl", 15)

	v.SetDefault("shop.timezone", "Asia/Tashkent")
	v.SetDefault("shop.support_username", "admin_username")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.output_paths", []string{"stdout"})
}

func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}
	if c.Telegram.AdminChatID == 0 {
		return errors.New("telegram.admin_chat_id is required")
	}
	switch c.Telegram.Mode {
	case ModePolling, ModeWebhook:
	default:
		return fmt.Errorf("unknown telegram.mode %q", c.Telegram.Mode)
	}
	switch c.Store.Driver {
	case DriverMongo, DriverMemory:
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	if _, err := time.LoadLocation(c.Shop.Timezone); err != nil {
		return fmt.Errorf("invalid shop.timezone: %w", err)
	}
	return nil
}

func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *ShopConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Build constructs the process logger.
func (c *LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Encoding == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if len(c.OutputPaths) > 0 {
		zc.OutputPaths = c.OutputPaths
	}
	return zc.Build()
}
