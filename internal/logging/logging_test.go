package logging

import (
	"testing"

	"github.com/stretchr/testify/require"

	"catalogbridge/internal/config"
)

func TestNewBuildsJSONLoggerByDefault(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewBuildsConsoleLogger(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "not-a-level", Format: "json"})
	require.Error(t, err)
}

func TestWithDeviceIDAddsField(t *testing.T) {
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	tagged := WithDeviceID(logger, "device-123")
	require.NotNil(t, tagged)
}
