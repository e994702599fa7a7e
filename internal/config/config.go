// Package config loads the service configuration from the environment using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env  string `mapstructure:"APP_ENV"`
	Port string `mapstructure:"APP_PORT"`
	// WSPort serves the realtime websocket endpoint.
	WSPort string `mapstructure:"WS_PORT"`

	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBName     string `mapstructure:"DB_NAME"`

	NatsURL      string `mapstructure:"NATS_URL"`
	JWTSecret    string `mapstructure:"JWT_SECRET"`
	OtelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// LifecycleProfile is "full" or "basic" (pending/accepted only).
	LifecycleProfile string `mapstructure:"LIFECYCLE_PROFILE"`

	DispatchWorkers   int `mapstructure:"DISPATCH_WORKERS"`
	DispatchQueueSize int `mapstructure:"DISPATCH_QUEUE_SIZE"`

	HubBufferSize           int     `mapstructure:"HUB_BUFFER_SIZE"`
	ClientSendBuffer        int     `mapstructure:"CLIENT_SEND_BUFFER"`
	SocketMessagesPerSecond float64 `mapstructure:"SOCKET_MESSAGES_PER_SECOND"`

	RateLimitMax    int    `mapstructure:"RATE_LIMIT_MAX"`
	RateLimitWindow string `mapstructure:"RATE_LIMIT_WINDOW"`

	S3Endpoint     string `mapstructure:"S3_ENDPOINT"`
	S3Bucket       string `mapstructure:"S3_BUCKET_NAME"`
	S3UsePathStyle bool   `mapstructure:"S3_USE_PATH_STYLE"`
	AWSRegion      string `mapstructure:"AWS_REGION"`
	AWSAccessKey   string `mapstructure:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `mapstructure:"AWS_SECRET_ACCESS_KEY"`

	APNSAuthKeyPath string `mapstructure:"APNS_AUTH_KEY_PATH"`
	APNSKeyID       string `mapstructure:"APNS_KEY_ID"`
	APNSTeamID      string `mapstructure:"APNS_TEAM_ID"`
	APNSTopic       string `mapstructure:"APNS_TOPIC"`
	APNSMode        string `mapstructure:"APNS_MODE"`
}

// Load reads .env.dev when present, then the environment. Variables set in
// the environment win over the file.
func Load() (*Config, error) {
	_ = godotenv.Load(".env.dev")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8001")
	v.SetDefault("WS_PORT", "8002")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "schedule")
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "jaeger:4317")
	v.SetDefault("LIFECYCLE_PROFILE", "full")
	v.SetDefault("DISPATCH_WORKERS", 4)
	v.SetDefault("DISPATCH_QUEUE_SIZE", 256)
	v.SetDefault("HUB_BUFFER_SIZE", 256)
	v.SetDefault("CLIENT_SEND_BUFFER", 64)
	v.SetDefault("SOCKET_MESSAGES_PER_SECOND", 5)
	v.SetDefault("RATE_LIMIT_MAX", 120)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")
	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_BUCKET_NAME", "")
	v.SetDefault("S3_USE_PATH_STYLE", false)
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("APNS_AUTH_KEY_PATH", "")
	v.SetDefault("APNS_KEY_ID", "")
	v.SetDefault("APNS_TEAM_ID", "")
	v.SetDefault("APNS_TOPIC", "")
	v.SetDefault("APNS_MODE", "development")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: JWT_SECRET must be set")
	}
	if c.LifecycleProfile != "full" && c.LifecycleProfile != "basic" {
		return fmt.Errorf("config: LIFECYCLE_PROFILE must be full or basic, got %q", c.LifecycleProfile)
	}
	if c.DispatchWorkers <= 0 || c.DispatchQueueSize <= 0 {
		return errors.New("config: DISPATCH_WORKERS and DISPATCH_QUEUE_SIZE must be positive")
	}
	if c.HubBufferSize <= 0 || c.ClientSendBuffer <= 0 {
		return errors.New("config: HUB_BUFFER_SIZE and CLIENT_SEND_BUFFER must be positive")
	}
	if c.SocketMessagesPerSecond <= 0 {
		return errors.New("config: SOCKET_MESSAGES_PER_SECOND must be positive")
	}
	return nil
}

func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName,
	)
}

// RateWindow parses RateLimitWindow, falling back to one minute.
func (c *Config) RateWindow() time.Duration {
	d, err := time.ParseDuration(c.RateLimitWindow)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// APNSConfigured reports whether push credentials are present. The worker
// runs in mock mode otherwise.
func (c *Config) APNSConfigured() bool {
	return c.APNSAuthKeyPath != "" && c.APNSAuthKeyPath[0] != '#' && c.APNSKeyID != "" && c.APNSTeamID != ""
}

// S3Configured reports whether attachment uploads can be presigned.
func (c *Config) S3Configured() bool {
	return c.S3Bucket != ""
}
