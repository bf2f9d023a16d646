// Package config provides configuration management for the application.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/libraryops/patron-blocks/internal/panel"
)

// Config holds all configuration for the application.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Okapi    OkapiConfig
	Panel    PanelConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Expirer  ExpirerConfig
	I18n     I18nConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// DatabaseConfig contains database connection configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type DatabaseConfig struct {
	Host           string
	Name           string
	User           string
	Password       string
	Port           int
	MaxConnections int
	MinConnections int
	MaxIdleTime    time.Duration
	MaxLifetime    time.Duration
}

// DSN returns the postgres connection URL, as used by migrations.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// RedisConfig contains Redis connection and cache configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	AutomatedTTL    time.Duration
	ActiveRecordTTL time.Duration
}

// RabbitMQConfig contains RabbitMQ connection and exchange configuration.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type RabbitMQConfig struct {
	Host       string
	User       string
	Password   string
	Exchange   string
	Queue      string
	RoutingKey string
	Port       int
}

// OkapiConfig points at the external policy engine that computes automated blocks.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type OkapiConfig struct {
	BaseURL       string
	Tenant        string
	Token         string
	Timeout       time.Duration
	AutomatedPath string
	// RemoteRecords makes panels read and delete manual blocks through Okapi instead
	// of the local database.
	RemoteRecords bool
}

// PanelConfig contains the panel fetch policies and routes.
//
//nolint:govet // fieldalignment: Accept minor memory overhead for better readability
type PanelConfig struct {
	AutomatedLimit    int
	Permission        string
	EditRoute         string
	CreateRoute       string
	MaxExpiryAttempts int
	ExpiryConcurrency int
	ExpiryTimeout     time.Duration
	IdleTTL           time.Duration
	SweepInterval     time.Duration
}

// Panel converts the section into the panel package configuration.
func (c PanelConfig) Panel() panel.Config {
	return panel.Config{
		AutomatedLimit:    c.AutomatedLimit,
		Permission:        c.Permission,
		EditRoute:         c.EditRoute,
		CreateRoute:       c.CreateRoute,
		MaxExpiryAttempts: c.MaxExpiryAttempts,
		ExpiryConcurrency: c.ExpiryConcurrency,
		ExpiryTimeout:     c.ExpiryTimeout,
	}
}

// AuthConfig contains the credentials the API checks.
type AuthConfig struct {
	// APIKeys protect the record store endpoints.
	APIKeys []string
	// JWTSecret verifies the HS256 tokens carrying user capabilities.
	JWTSecret string
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level string
	File  string
}

// ExpirerConfig configures the background sweeper.
type ExpirerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// I18nConfig configures the message catalog.
type I18nConfig struct {
	DefaultLanguage string
	Dir             string
}

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "patronblocks")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.maxconnections", 10)
	viper.SetDefault("database.minconnections", 2)
	viper.SetDefault("database.maxidletime", 10*time.Minute)
	viper.SetDefault("database.maxlifetime", 1*time.Hour)

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.automatedttl", 5*time.Minute)
	viper.SetDefault("redis.activerecordttl", 24*time.Hour)

	// RabbitMQ
	viper.SetDefault("rabbitmq.host", "localhost")
	viper.SetDefault("rabbitmq.port", 5672)
	viper.SetDefault("rabbitmq.user", "guest")
	viper.SetDefault("rabbitmq.password", "guest")
	viper.SetDefault("rabbitmq.exchange", "patron.blocks")
	viper.SetDefault("rabbitmq.queue", "patron.blocks.expired")
	viper.SetDefault("rabbitmq.routingkey", "patron_block.expired")

	// Okapi
	viper.SetDefault("okapi.baseurl", "http://localhost:9130")
	viper.SetDefault("okapi.tenant", "diku")
	viper.SetDefault("okapi.token", "")
	viper.SetDefault("okapi.timeout", 10*time.Second)
	viper.SetDefault("okapi.automatedpath", "automated-patron-blocks")
	viper.SetDefault("okapi.remoterecords", false)

	// Panel
	defaults := panel.DefaultConfig()
	viper.SetDefault("panel.automatedlimit", defaults.AutomatedLimit)
	viper.SetDefault("panel.permission", defaults.Permission)
	viper.SetDefault("panel.editroute", defaults.EditRoute)
	viper.SetDefault("panel.createroute", defaults.CreateRoute)
	viper.SetDefault("panel.maxexpiryattempts", defaults.MaxExpiryAttempts)
	viper.SetDefault("panel.expiryconcurrency", defaults.ExpiryConcurrency)
	viper.SetDefault("panel.expirytimeout", defaults.ExpiryTimeout)
	viper.SetDefault("panel.idlettl", 30*time.Minute)
	viper.SetDefault("panel.sweepinterval", time.Minute)

	// Auth
	viper.SetDefault("auth.apikeys", []string{})
	viper.SetDefault("auth.jwtsecret", "")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")

	// Expirer
	viper.SetDefault("expirer.interval", 5*time.Minute)
	viper.SetDefault("expirer.batchsize", 500)
	viper.SetDefault("expirer.concurrency", 8)

	// I18n
	viper.SetDefault("i18n.defaultlanguage", "en")
	viper.SetDefault("i18n.dir", "")
}
