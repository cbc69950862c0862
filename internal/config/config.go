package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrEmptyDBPassword     = errors.New("database password is required")
	ErrEmptyNotifyToken    = errors.New("telegram token is required when notifications are enabled")
	ErrInvalidOnMalformed  = errors.New("collector.on_malformed must be \"fail\" or \"skip\"")
	ErrInvalidHandoff      = errors.New("handoff.backend must be \"memory\" or \"nats\"")
	ErrNonPositiveDuration = errors.New("collector duration must be positive")
)

const (
	OnMalformedFail = "fail"
	OnMalformedSkip = "skip"

	HandoffMemory = "memory"
	HandoffNATS   = "nats"
)

type Config struct {
	App       AppConfig       `yaml:"app" env-prefix:"APP_"`
	Database  DatabaseConfig  `yaml:"database" env-prefix:"DB_"`
	API       APIConfig       `yaml:"api" env-prefix:"API_"`
	Collector CollectorConfig `yaml:"collector" env-prefix:"COLLECTOR_"`
	Schedule  ScheduleConfig  `yaml:"schedule" env-prefix:"SCHEDULE_"`
	Handoff   HandoffConfig   `yaml:"handoff" env-prefix:"HANDOFF_"`
	NATS      NATSConfig      `yaml:"nats" env-prefix:"NATS_"`
	Notify    NotifyConfig    `yaml:"notify" env-prefix:"NOTIFY_"`
	Health    HealthConfig    `yaml:"health" env-prefix:"HEALTH_"`
}

type AppConfig struct {
	Name        string `yaml:"name" env:"NAME" env-default:"joke-pipeline"`
	Environment string `yaml:"environment" env:"ENVIRONMENT" env-default:"production"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
}

type DatabaseConfig struct {
	Host           string `yaml:"host" env:"HOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PORT" env-default:"5432"`
	User           string `yaml:"user" env:"USER" env-default:"airflow"`
	Password       string `yaml:"password" env:"PASSWORD"`
	Name           string `yaml:"name" env:"NAME" env-default:"jokes"`
	SSLMode        string `yaml:"sslmode" env:"SSLMODE" env-default:"disable"`
	MaxConnections int    `yaml:"max_connections" env:"MAX_CONNECTIONS" env-default:"4"`
	MinConnections int    `yaml:"min_connections" env:"MIN_CONNECTIONS" env-default:"1"`
}

// ConnectionString renders a postgres URL with user, password and database
// name escaped.
func (d DatabaseConfig) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type APIConfig struct {
	URL       string        `yaml:"url" env:"URL" env-default:"https://official-joke-api.appspot.com/random_joke"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"5s"`
	UserAgent string        `yaml:"user_agent" env:"USER_AGENT" env-default:"joke-pipeline/1.0"`
}

type CollectorConfig struct {
	Duration    time.Duration `yaml:"duration" env:"DURATION" env-default:"10s"`
	Pause       time.Duration `yaml:"pause" env:"PAUSE" env-default:"500ms"`
	Timezone    string        `yaml:"timezone" env:"TIMEZONE" env-default:"Asia/Kolkata"`
	OnMalformed string        `yaml:"on_malformed" env:"ON_MALFORMED" env-default:"fail"`
}

// Location resolves Timezone. An empty zone means UTC.
func (c CollectorConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid collector timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

type ScheduleConfig struct {
	Interval   string        `yaml:"interval" env:"INTERVAL" env-default:"@every 10s"`
	Retries    int           `yaml:"retries" env:"RETRIES" env-default:"1"`
	RetryDelay time.Duration `yaml:"retry_delay" env:"RETRY_DELAY" env-default:"5m"`
}

type HandoffConfig struct {
	Backend string `yaml:"backend" env:"BACKEND" env-default:"memory"`
	Key     string `yaml:"key" env:"KEY" env-default:"jokes"`
}

type NATSConfig struct {
	URL    string        `yaml:"url" env:"URL" env-default:"nats://localhost:4222"`
	Bucket string        `yaml:"bucket" env:"BUCKET" env-default:"joke_pipeline"`
	TTL    time.Duration `yaml:"ttl" env:"TTL" env-default:"1h"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED" env-default:"false"`
	Token   string `yaml:"token" env:"TOKEN"`
	ChatID  int64  `yaml:"chat_id" env:"CHAT_ID"`
}

type HealthConfig struct {
	Port     int    `yaml:"port" env:"PORT" env-default:"8080"`
	Endpoint string `yaml:"endpoint" env:"ENDPOINT" env-default:"/healthz"`
}

// Load reads the configuration and validates it.
func Load() (*Config, error) {
	cfg, err := Read()
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read reads the configuration from CONFIG_PATH and the environment without
// validating it, for tools that only need part of it.
func Read() (*Config, error) {
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
		return nil, fmt.Errorf("failed to read config from env: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return ErrEmptyDBPassword
	}

	if c.Notify.Enabled && c.Notify.Token == "" {
		return ErrEmptyNotifyToken
	}

	switch c.Collector.OnMalformed {
	case OnMalformedFail, OnMalformedSkip:
	default:
		return ErrInvalidOnMalformed
	}

	switch c.Handoff.Backend {
	case HandoffMemory, HandoffNATS:
	default:
		return ErrInvalidHandoff
	}

	if c.Collector.Duration <= 0 {
		return ErrNonPositiveDuration
	}

	if _, err := c.Collector.Location(); err != nil {
		return err
	}

	return nil
}
