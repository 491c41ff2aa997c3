package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, so server.port is
// read from GENFLOW_SERVER_PORT.
const EnvPrefix = "GENFLOW"

// Default values for every configuration key. Registering a default for each
// key is also what lets viper pick the key up from the environment on
// Unmarshal.
var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.shutdown_timeout": 10 * time.Second,

	"database.url": "",

	"redis.addr":     "",
	"redis.password": "",
	"redis.db":       0,
	"redis.job_ttl":  7 * 24 * time.Hour,

	"storage.driver":   "fs",
	"storage.bucket":   "",
	"storage.region":   "",
	"storage.dir":      "./artifacts",
	"storage.base_url": "http://localhost:8080/artifacts",

	"pubsub.driver":    "none",
	"pubsub.amqp_url":  "",
	"pubsub.exchange":  "task-completion",
	"pubsub.topic_arn": "",
	"pubsub.region":    "",

	"webhook.timeout":         5 * time.Second,
	"webhook.max_attempts":    3,
	"webhook.initial_backoff": time.Second,

	"poller.interval":        3 * time.Second,
	"poller.timeout":         120 * time.Second,
	"poller.persist_timeout": 2 * time.Minute,
	"poller.workers":         4,
	"poller.queue_size":      100,

	"worker.count":                4,
	"worker.queue_size":           100,
	"worker.stale_age":            15 * time.Minute,
	"worker.stale_check_interval": 30 * time.Second,
	"worker.redeliver_age":        30 * time.Second,

	"backends.replicate.api_token":     "",
	"backends.replicate.base_url":      "https://api.replicate.com/v1",
	"backends.replicate.image_version": "70a95a700a394552368f765fee2e22aa77d6addb933ba3ad914683c5e11940e1",
	"backends.replicate.video_version": "",

	"backends.gemini.api_key": "",
	"backends.gemini.model":   "gemini-2.0-flash",

	"backends.openai.api_key":  "",
	"backends.openai.base_url": "https://api.openai.com/v1",
	"backends.openai.model":    "gpt-4o-mini",

	"backends.elevenlabs.api_key":  "",
	"backends.elevenlabs.base_url": "https://api.elevenlabs.io/v1",
	"backends.elevenlabs.voice_id": "pNInz6obpgDQGcFmaJgB",
	"backends.elevenlabs.model_id": "eleven_multilingual_v2",

	"auth.jwt_secret": "",
}

// Load configuration from environment variables and an optional config.yaml
// in the working directory. Environment variables take precedence over values
// from the file.
func Load() (*Config, error) {
	return load("")
}

// LoadFromFile is like Load but reads the given config file, which must exist.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path is empty")
	}
	return load(path)
}

func load(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
