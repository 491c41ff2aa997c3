package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	PubSub   PubSubConfig   `mapstructure:"pubsub" validate:"required"`
	Webhook  WebhookConfig  `mapstructure:"webhook" validate:"required"`
	Poller   PollerConfig   `mapstructure:"poller" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
	Backends BackendsConfig `mapstructure:"backends"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig configures the Postgres task store. When URL is empty the
// in-memory store is used.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// RedisConfig configures the job record store. When Addr is empty job
// records are kept in memory.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr" validate:"omitempty,hostname_port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"gte=0"`
	JobTTL   time.Duration `mapstructure:"job_ttl" validate:"gt=0"`
}

// StorageConfig selects the object store artifacts are persisted to.
type StorageConfig struct {
	Driver  string `mapstructure:"driver" validate:"required,oneof=s3 gcs fs"`
	Bucket  string `mapstructure:"bucket" validate:"required_unless=Driver fs"`
	Region  string `mapstructure:"region" validate:"required_if=Driver s3"`
	Dir     string `mapstructure:"dir" validate:"required_if=Driver fs"`
	BaseURL string `mapstructure:"base_url" validate:"required_if=Driver fs"`
}

// PubSubConfig selects the completion topic publisher.
type PubSubConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=amqp sns none"`
	AMQPURL  string `mapstructure:"amqp_url" validate:"required_if=Driver amqp"`
	Exchange string `mapstructure:"exchange" validate:"required_if=Driver amqp"`
	TopicARN string `mapstructure:"topic_arn" validate:"required_if=Driver sns"`
	Region   string `mapstructure:"region" validate:"required_if=Driver sns"`
}

// WebhookConfig controls webhook delivery.
type WebhookConfig struct {
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts" validate:"gte=1"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" validate:"gt=0"`
}

// PollerConfig controls how long slow upstream jobs are waited on.
// Polls run on their own workers so long waits never hold up task dispatch.
type PollerConfig struct {
	Interval       time.Duration `mapstructure:"interval" validate:"gt=0"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gtfield=Interval"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout" validate:"gt=0"`
	Workers        int           `mapstructure:"workers" validate:"gte=1"`
	QueueSize      int           `mapstructure:"queue_size" validate:"gte=1"`
}

// WorkerConfig sizes the background worker runner.
type WorkerConfig struct {
	Count              int           `mapstructure:"count" validate:"gte=1"`
	QueueSize          int           `mapstructure:"queue_size" validate:"gte=1"`
	StaleAge           time.Duration `mapstructure:"stale_age" validate:"gt=0"`
	StaleCheckInterval time.Duration `mapstructure:"stale_check_interval" validate:"gt=0"`
	// RedeliverAge is how long a task may sit in starting before its
	// creation event is sent again.
	RedeliverAge time.Duration `mapstructure:"redeliver_age" validate:"gt=0"`
}

// BackendsConfig holds credentials and defaults for each upstream API.
// A backend without credentials is not registered.
type BackendsConfig struct {
	Replicate  ReplicateConfig  `mapstructure:"replicate"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
}

type ReplicateConfig struct {
	APIToken     string `mapstructure:"api_token"`
	BaseURL      string `mapstructure:"base_url" validate:"required,url"`
	ImageVersion string `mapstructure:"image_version" validate:"required"`
	VideoVersion string `mapstructure:"video_version"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model" validate:"required"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	Model   string `mapstructure:"model" validate:"required"`
}

type ElevenLabsConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	VoiceID string `mapstructure:"voice_id" validate:"required"`
	ModelID string `mapstructure:"model_id" validate:"required"`
}

// AuthConfig contains authentication settings. Bearer auth on the task
// routes is enabled only when JWTSecret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}
