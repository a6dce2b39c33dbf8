package logger

import (
	"examprep-marketplace/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Module = fx.Module("zap",
	fx.Provide(
		New,
	),
)

type ConfigParams struct {
	fx.In
	Cfg *config.Config
}

func productionConfig(level zapcore.Level) zap.Config {
	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"
	config.EncoderConfig.LevelKey = "severity"
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	config.Encoding = "json"
	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	return config
}

// parseLevel falls back to info on an empty or unknown level.
func parseLevel(s string) zapcore.Level {
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Build returns a JSON logger in production and a console logger elsewhere,
// tagged with the environment and service name.
func Build(cfg *config.Config) (*zap.Logger, error) {
	if cfg == nil {
		return zap.NewDevelopment()
	}

	var zc zap.Config
	if cfg.AppEnv == "production" {
		zc = productionConfig(parseLevel(cfg.LogLevel))
	} else {
		zc = zap.NewDevelopmentConfig()
		if cfg.LogLevel != "" {
			zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.LogLevel))
		}
	}

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}

	return log.With(
		zap.String("env", cfg.AppEnv),
		zap.String("service_name", cfg.AppName),
	), nil
}

func New(p ConfigParams) (*zap.Logger, error) {
	log, err := Build(p.Cfg)
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(log)
	return log, nil
}
