// Package config loads the application configuration from TOML.
// Several candidate paths are tried so the binary runs from the repo root or from cmd/.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// MainConfig basic server settings
type MainConfig struct {
	AppName string `toml:"appName"` // used as log identifier
	Host    string `toml:"host"`    // listen address, e.g. "0.0.0.0"
	Port    int    `toml:"port"`    // listen port, e.g. 8000
	Mode    string `toml:"mode"`    // "dev" or "release"

	TLSRedirect bool `toml:"tlsRedirect"` // redirect plain HTTP to HTTPS, off when a proxy terminates TLS
}

// StoreConfig selects the persistence backend once at startup
type StoreConfig struct {
	Backend    string `toml:"backend"`    // "cloud" (MySQL + change feed) or "local" (SQLite + in-process bus)
	ChangeFeed string `toml:"changeFeed"` // cloud only: "redis" or "kafka"
}

// MysqlConfig cloud document store connection
type MysqlConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	DatabaseName string `toml:"databaseName"`
}

// SqliteConfig embedded document store
type SqliteConfig struct {
	Path string `toml:"path"` // database file, e.g. "data/support.db"
}

// RedisConfig change feed over pub/sub
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	Db       int    `toml:"db"`
	Channel  string `toml:"channel"` // pub/sub channel carrying store changes
}

// KafkaConfig change feed over a Kafka topic
type KafkaConfig struct {
	HostPort    string        `toml:"hostPort"`    // e.g. "localhost:9092"
	ChangeTopic string        `toml:"changeTopic"` // topic carrying store changes
	GroupPrefix string        `toml:"groupPrefix"` // every instance consumes all changes under its own group
	Timeout     time.Duration `toml:"timeout"`     // seconds
}

// LogConfig zap + lumberjack rotation
type LogConfig struct {
	LogPath    string `toml:"logPath"`
	FileName   string `toml:"fileName"`
	MaxSize    int    `toml:"maxSize"`    // MB per file
	MaxBackups int    `toml:"maxBackups"` // rotated files kept
	MaxAge     int    `toml:"maxAge"`     // days kept
	Level      string `toml:"level"`      // debug, info, warn, error
}

// TelegramConfig relay bot and admin notification side channel
type TelegramConfig struct {
	Enabled       bool   `toml:"enabled"`
	Token         string `toml:"token"`         // relay bot token
	Mode          string `toml:"mode"`          // "polling" or "webhook"
	WebhookSecret string `toml:"webhookSecret"` // X-Telegram-Bot-Api-Secret-Token
	APIServerURL  string `toml:"apiServerURL"`  // optional Bot API proxy, empty for api.telegram.org

	NotifyToken       string `toml:"notifyToken"`       // side channel bot token, defaults to Token
	AdminChatID       int64  `toml:"adminChatId"`       // fixed chat receiving new-message alerts
	NotifyAPIEndpoint string `toml:"notifyApiEndpoint"` // optional, format "https://host/bot%s/%s"

	BreakerMaxFailures int `toml:"breakerMaxFailures"` // consecutive failures before the breaker opens
	BreakerOpenSeconds int `toml:"breakerOpenSeconds"` // how long the breaker stays open
}

// JWTConfig admin token verification
type JWTConfig struct {
	Secret            string `toml:"secret"`            // at least 32 chars
	AccessTokenExpiry int    `toml:"accessTokenExpiry"` // minutes
}

// CorsConfig widget origins
type CorsConfig struct {
	AllowOrigins []string `toml:"allowOrigins"`
}

// SnowflakeConfig message id generator
type SnowflakeConfig struct {
	MachineID int64 `toml:"machineId"` // 0-1023, unique per instance
}

// WorkerConfig fire-and-forget pool (admin notifications)
type WorkerConfig struct {
	Workers    int `toml:"workers"`
	BufferSize int `toml:"bufferSize"`
}

// SchedulerConfig maintenance jobs
type SchedulerConfig struct {
	MaintenanceCron string `toml:"maintenanceCron"` // crontab expression
}

// Config aggregates every section
type Config struct {
	MainConfig      `toml:"mainConfig"`
	StoreConfig     `toml:"storeConfig"`
	MysqlConfig     `toml:"mysqlConfig"`
	SqliteConfig    `toml:"sqliteConfig"`
	RedisConfig     `toml:"redisConfig"`
	KafkaConfig     `toml:"kafkaConfig"`
	LogConfig       `toml:"logConfig"`
	TelegramConfig  `toml:"telegramConfig"`
	JWTConfig       `toml:"jwtConfig"`
	CorsConfig      `toml:"corsConfig"`
	SnowflakeConfig `toml:"snowflakeConfig"`
	WorkerConfig    `toml:"workerConfig"`
	SchedulerConfig `toml:"schedulerConfig"`
}

// DefaultPaths are tried in order by Load when no explicit path is given.
var DefaultPaths = []string{
	"configs/config_local.toml",       // local development (preferred)
	"configs/config.toml",             // default
	"../../configs/config_local.toml", // running from cmd/<binary>
	"../../configs/config.toml",
}

// Load decodes the first readable file among paths (DefaultPaths when empty),
// applies defaults and validates the result.
func Load(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	conf := new(Config)
	var lastErr error
	loaded := false
	for _, path := range paths {
		if _, err := toml.DecodeFile(path, conf); err != nil {
			lastErr = err
			continue
		}
		loaded = true
		break
	}
	if !loaded {
		return nil, fmt.Errorf("could not load configuration from %v: %w", paths, lastErr)
	}
	conf.applyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// Decode parses TOML text; used by tests and tooling.
func Decode(data string) (*Config, error) {
	conf := new(Config)
	if _, err := toml.Decode(data, conf); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	conf.applyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyDefaults() {
	if c.AppName == "" {
		c.AppName = "support_chat_server"
	}
	if c.MainConfig.Host == "" {
		c.MainConfig.Host = "0.0.0.0"
	}
	if c.MainConfig.Port == 0 {
		c.MainConfig.Port = 8000
	}
	if c.MainConfig.Mode == "" {
		c.MainConfig.Mode = "release"
	}
	if c.Backend == "" {
		c.Backend = "local"
	}
	if c.Backend == "cloud" && c.ChangeFeed == "" {
		c.ChangeFeed = "redis"
	}
	if c.SqliteConfig.Path == "" {
		c.SqliteConfig.Path = "data/support.db"
	}
	if c.MysqlConfig.Port == 0 {
		c.MysqlConfig.Port = 3306
	}
	if c.RedisConfig.Port == 0 {
		c.RedisConfig.Port = 6379
	}
	if c.Channel == "" {
		c.Channel = "support_chat:changes"
	}
	if c.ChangeTopic == "" {
		c.ChangeTopic = "support_chat_changes"
	}
	if c.GroupPrefix == "" {
		c.GroupPrefix = "support_chat"
	}
	if c.KafkaConfig.Timeout == 0 {
		c.KafkaConfig.Timeout = 1
	}
	if c.TelegramConfig.Mode == "" {
		c.TelegramConfig.Mode = "polling"
	}
	if c.NotifyToken == "" {
		c.NotifyToken = c.Token
	}
	if c.BreakerMaxFailures == 0 {
		c.BreakerMaxFailures = 5
	}
	if c.BreakerOpenSeconds == 0 {
		c.BreakerOpenSeconds = 30
	}
	if c.AccessTokenExpiry == 0 {
		c.AccessTokenExpiry = 60
	}
	if len(c.AllowOrigins) == 0 {
		c.AllowOrigins = []string{"*"}
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.BufferSize == 0 {
		c.BufferSize = 256
	}
	if c.MaintenanceCron == "" {
		c.MaintenanceCron = "0 4 * * *"
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	switch c.Backend {
	case "local":
	case "cloud":
		if c.ChangeFeed != "redis" && c.ChangeFeed != "kafka" {
			return fmt.Errorf("storeConfig.changeFeed must be redis or kafka, got %q", c.ChangeFeed)
		}
		if c.MysqlConfig.Host == "" || c.DatabaseName == "" {
			return fmt.Errorf("mysqlConfig.host and mysqlConfig.databaseName are required for the cloud backend")
		}
		if c.ChangeFeed == "kafka" && c.HostPort == "" {
			return fmt.Errorf("kafkaConfig.hostPort is required for the kafka change feed")
		}
	default:
		return fmt.Errorf("storeConfig.backend must be cloud or local, got %q", c.Backend)
	}
	if c.TelegramConfig.Enabled {
		if c.Token == "" {
			return fmt.Errorf("telegramConfig.token is required when telegram is enabled")
		}
		if c.TelegramConfig.Mode != "polling" && c.TelegramConfig.Mode != "webhook" {
			return fmt.Errorf("telegramConfig.mode must be polling or webhook, got %q", c.TelegramConfig.Mode)
		}
	}
	if len(c.Secret) < 32 {
		return fmt.Errorf("jwtConfig.secret must be at least 32 characters")
	}
	return nil
}
