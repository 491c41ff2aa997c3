package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/genflow/internal/config"
)

// loadAppConfig loads the configuration from the environment and either the
// given file or an optional config.yaml in the working directory.
func loadAppConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// logConfigSummary logs which optional components are enabled, without any
// secret values.
func logConfigSummary(cfg *config.Config, logger *slog.Logger) {
	logger.Info("Server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	logger.Debug("Optional components",
		"database", cfg.Database.URL != "",
		"redis", cfg.Redis.Addr != "",
		"auth", cfg.Auth.JWTSecret != "",
		"replicate", cfg.Backends.Replicate.APIToken != "",
		"gemini", cfg.Backends.Gemini.APIKey != "",
		"openai", cfg.Backends.OpenAI.APIKey != "",
		"elevenlabs", cfg.Backends.ElevenLabs.APIKey != "")
}
