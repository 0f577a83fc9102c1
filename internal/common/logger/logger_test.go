package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/fetchmd/internal/common/configtypes"
)

// TestNewLoggerNoOutputs tests that at least one output must be enabled
func TestNewLoggerNoOutputs(t *testing.T) {
	_, err := NewLogger(configtypes.LogConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one log output")
}

// TestNewLoggerFileWithoutPath tests the file-path requirement
func TestNewLoggerFileWithoutPath(t *testing.T) {
	_, err := NewLogger(configtypes.LogConfig{
		File: configtypes.FileLogConfig{Enabled: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file.path")
}

// TestNewDefaultLogger tests the pre-config console fallback
func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefaultLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel), "default level is info")
}

// TestResolveLogLevel tests the per-output override
func TestResolveLogLevel(t *testing.T) {
	assert.Equal(t, zap.WarnLevel, resolveLogLevel(configtypes.LogLevelWarn, zap.InfoLevel))
	assert.Equal(t, zap.InfoLevel, resolveLogLevel("", zap.InfoLevel))
	assert.Equal(t, zap.InfoLevel, resolveLogLevel("garbage", zap.DebugLevel))
}
