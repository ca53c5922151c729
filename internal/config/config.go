package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrEmptyBotToken   = errors.New("telegram bot token is required")
	ErrEmptyDBPassword = errors.New("database password is required")
	ErrUnknownDriver   = errors.New("unknown storage driver")
)

const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

type Config struct {
	App        AppConfig        `yaml:"app" env-prefix:"APP_"`
	HTTP       HTTPConfig       `yaml:"http" env-prefix:"HTTP_"`
	Storage    StorageConfig    `yaml:"storage" env-prefix:"STORAGE_"`
	Database   DatabaseConfig   `yaml:"database" env-prefix:"DB_"`
	Redis      RedisConfig      `yaml:"redis" env-prefix:"REDIS_"`
	Submission SubmissionConfig `yaml:"submission" env-prefix:"SUBMISSION_"`
	Admin      AdminConfig      `yaml:"admin" env-prefix:"ADMIN_"`
	Paywall    PaywallConfig    `yaml:"paywall" env-prefix:"PAYWALL_"`
	Ads        AdsConfig        `yaml:"ads" env-prefix:"ADS_"`
	Bot        BotConfig        `yaml:"bot" env-prefix:"BOT_"`
	NATS       NATSConfig       `yaml:"nats" env-prefix:"NATS_"`
	Importer   ImporterConfig   `yaml:"importer" env-prefix:"IMPORTER_"`
}

type AppConfig struct {
	Name        string `yaml:"name" env:"NAME" env-default:"viola-joke"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"production"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTPConfig struct {
	Port            int           `yaml:"port" env:"PORT" env-default:"8080"`
	BaseURL         string        `yaml:"base_url" env:"BASE_URL" env-default:"https://violajoke.com"`
	HealthEndpoint  string        `yaml:"health_endpoint" env:"HEALTH_ENDPOINT" env-default:"/healthz"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func (h HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", h.Port)
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"DRIVER" env-default:"file"`
	Path   string `yaml:"path" env:"PATH" env-default:"data/jokes.json"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PORT" env-default:"5432"`
	User           string `yaml:"user" env:"USER" env-default:"violajoke"`
	Password       string `yaml:"password" env:"PASSWORD"`
	Name           string `yaml:"name" env:"NAME" env-default:"violajoke"`
	MaxConnections int    `yaml:"max_connections" env:"MAX_CONNECTIONS" env-default:"10"`
	MinConnections int    `yaml:"min_connections" env:"MIN_CONNECTIONS" env-default:"1"`
}

func (d DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Addr     string `yaml:"addr" env:"ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB" env-default:"0"`
}

type SubmissionConfig struct {
	RateLimit     int           `yaml:"rate_limit" env:"RATE_LIMIT" env-default:"5"`
	RateWindow    time.Duration `yaml:"rate_window" env:"RATE_WINDOW" env-default:"1h"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL" env-default:"10m"`
	MaxClients    int           `yaml:"max_clients" env:"MAX_CLIENTS" env-default:"10000"`
}

type AdminConfig struct {
	Secret string `yaml:"secret" env:"SECRET"`
}

type PaywallConfig struct {
	FreeDailyJokes int `yaml:"free_daily_jokes" env:"FREE_DAILY_JOKES" env-default:"10"`
}

type AdsConfig struct {
	Enabled   bool     `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Positions []string `yaml:"positions" env:"POSITIONS" env-separator:"," env-default:"top,middle,bottom"`
}

type BotConfig struct {
	Enabled     bool   `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Token       string `yaml:"token" env:"TOKEN"`
	AdminChatID int64  `yaml:"admin_chat_id" env:"ADMIN_CHAT_ID"`
	ParseMode   string `yaml:"parse_mode" env:"PARSE_MODE" env-default:"Markdown"`
}

type NATSConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENABLED" env-default:"false"`
	URL        string `yaml:"url" env:"URL" env-default:"nats://localhost:4222"`
	StreamName string `yaml:"stream_name" env:"STREAM_NAME" env-default:"VIOLA"`
}

type ImporterConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Interval time.Duration `yaml:"interval" env:"INTERVAL" env-default:"6h"`
	Reddit   RedditConfig  `yaml:"reddit" env-prefix:"REDDIT_"`
}

type RedditConfig struct {
	Enabled    bool     `yaml:"enabled" env:"ENABLED" env-default:"true"`
	Subreddits []string `yaml:"subreddits" env:"SUBREDDITS" env-separator:"," env-default:"violajokes"`
	Limit      int      `yaml:"limit" env:"LIMIT" env-default:"25"`
}

// Load reads the YAML file named by CONFIG_PATH (if it exists) and overlays
// environment variables on top of it.
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.prod.yaml"
	}

	var cfg Config

	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config from %s: %w", configPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverFile:
	case DriverPostgres:
		if c.Database.Password == "" {
			return ErrEmptyDBPassword
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Storage.Driver)
	}

	if c.Bot.Enabled && c.Bot.Token == "" {
		return ErrEmptyBotToken
	}

	return nil
}
