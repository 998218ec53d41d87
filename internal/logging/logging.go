// Package logging builds the zap logger shared by the control surface and
// the merge orchestrator, configured from internal/config's LoggingConfig.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"catalogbridge/internal/config"
)

// New builds a zap.Logger from cfg. Format "console" yields zap's
// development config with the human-readable console encoder; any other
// value, including "json", yields the production config's JSON encoder.
func New(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("logging: parse level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}
	return logger, nil
}

// WithDeviceID returns a child logger tagged with the device the current
// merge is running against, so every log line in a merge's lifetime can be
// filtered by it.
func WithDeviceID(logger *zap.Logger, deviceID string) *zap.Logger {
	return logger.With(zap.String("device_id", deviceID))
}
