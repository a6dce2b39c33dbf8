package logger

import (
	"testing"

	"examprep-marketplace/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	require.Equal(t, zapcore.WarnLevel, parseLevel("WARN"))
	require.Equal(t, zapcore.InfoLevel, parseLevel(""))
	require.Equal(t, zapcore.InfoLevel, parseLevel("loud"))
}

func TestBuildProduction(t *testing.T) {
	log, err := Build(&config.Config{AppEnv: "production", AppName: "marketplace", LogLevel: "warn"})
	require.NoError(t, err)
	require.False(t, log.Core().Enabled(zapcore.InfoLevel))
	require.True(t, log.Core().Enabled(zapcore.WarnLevel))
}

func TestBuildDevelopment(t *testing.T) {
	log, err := Build(&config.Config{AppEnv: "development", LogLevel: "debug"})
	require.NoError(t, err)
	require.True(t, log.Core().Enabled(zapcore.DebugLevel))
}
