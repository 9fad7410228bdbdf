// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/example/roomchat/modules/api"
	chatmod "github.com/example/roomchat/modules/chat"
	"github.com/example/roomchat/modules/identity"
	"github.com/example/roomchat/modules/storage"
	"github.com/example/roomchat/modules/topic"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Topic broker backends.
const (
	BrokerNATS  = "nats"
	BrokerRedis = "redis"
)

const defaultAllowedOrigins = "http://localhost:3000,http://localhost:8080"

// Config holds every setting read from the environment.
type Config struct {
	Port string `env:"PORT,default=3000" validate:"required,numeric"`

	DBDriver    string `env:"DB_DRIVER,default=sqlite" validate:"oneof=sqlite postgres"`
	DBPath      string `env:"DB_PATH,default=chat.db" validate:"required_if=DBDriver sqlite"`
	DatabaseURL string `env:"DATABASE_URL" validate:"required_if=DBDriver postgres"`
	DBDebug     bool   `env:"DB_DEBUG,default=false"`

	TopicBroker        string `env:"TOPIC_BROKER,default=nats" validate:"oneof=nats redis"`
	RedisAddr          string `env:"REDIS_ADDR,default=localhost:6379" validate:"required_if=TopicBroker redis"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisDB            int    `env:"REDIS_DB,default=0" validate:"gte=0"`
	RedisChannelPrefix string `env:"REDIS_CHANNEL_PREFIX,default=chat:"`

	DeliveryMode string `env:"DELIVERY_MODE,default=direct" validate:"oneof=direct topic"`

	JWTSecret       string        `env:"JWT_SECRET" validate:"required,min=16"`
	JWTIssuer       string        `env:"JWT_ISSUER,default=roomchat" validate:"required"`
	TokenTTL        time.Duration `env:"TOKEN_TTL,default=24h" validate:"gt=0"`
	AllowTokenIssue bool          `env:"ALLOW_TOKEN_ISSUE,default=false"`

	SendBuffer         int    `env:"SEND_BUFFER,default=256" validate:"gt=0"`
	MaxMessageSize     int    `env:"MAX_MESSAGE_SIZE,default=8192" validate:"gt=0"`
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s" validate:"gt=0"`
	LogLevel        string        `env:"LOG_LEVEL,default=info" validate:"oneof=info error"`
}

var validate = validator.New()

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if cfg.CORSAllowedOrigins == "" {
		cfg.CORSAllowedOrigins = defaultAllowedOrigins
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown enum values, a missing secret and
// non-positive sizes.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	errs := make([]error, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		errs = append(errs, fmt.Errorf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %w", errors.Join(errs...))
}

// Mode returns the chat delivery mode.
func (c *Config) Mode() chatmod.DeliveryMode {
	return chatmod.DeliveryMode(c.DeliveryMode)
}

// UseRedis reports whether topics fan out through Redis.
func (c *Config) UseRedis() bool {
	return c.TopicBroker == BrokerRedis
}

// Storage returns the storage module configuration.
func (c *Config) Storage() storage.Config {
	return storage.Config{
		Driver:      c.DBDriver,
		Path:        c.DBPath,
		DatabaseURL: c.DatabaseURL,
		Debug:       c.DBDebug,
	}
}

// Identity returns the token manager configuration.
func (c *Config) Identity() identity.Config {
	return identity.Config{
		SecretKey:     c.JWTSecret,
		Issuer:        c.JWTIssuer,
		TokenDuration: c.TokenTTL,
	}
}

// Redis returns the Redis broker options.
func (c *Config) Redis() topic.RedisOptions {
	return topic.RedisOptions{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
		Prefix:   c.RedisChannelPrefix,
	}
}

// API returns the HTTP server configuration.
func (c *Config) API() api.Config {
	return api.Config{
		Port:            c.Port,
		AllowedOrigins:  c.CORSAllowedOrigins,
		AllowTokenIssue: c.AllowTokenIssue,
		SendBuffer:      c.SendBuffer,
		MaxMessageSize:  c.MaxMessageSize,
	}
}
