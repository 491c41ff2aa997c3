package main

import (
	"fmt"
	"log/slog"

	"github.com/phrazzld/genflow/internal/config"
	"github.com/phrazzld/genflow/internal/platform/logger"
)

// setupAppLogger installs the process logger at the configured level.
func setupAppLogger(cfg *config.Config) (*slog.Logger, error) {
	l, err := logger.Setup(logger.LoggerConfig{Level: cfg.Server.LogLevel})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	return l, nil
}
