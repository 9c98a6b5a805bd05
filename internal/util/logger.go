package util

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// InitLogger installs the process-wide logger. Production emits JSON at
// info; anything else gets a colored console at debug. A non-empty level
// ("debug", "warn", ...) overrides either default.
func InitLogger(env, level string) error {
	cfg, err := loggerConfig(env, level)
	if err != nil {
		return err
	}

	built, err := cfg.Build(zap.Fields(zap.String("env", env)))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	SetLogger(built)
	return nil
}

func loggerConfig(env, level string) (zap.Config, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return zap.Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	return cfg, nil
}

// SetLogger replaces the global logger
func SetLogger(l *zap.Logger) {
	logger = l
	zap.ReplaceGlobals(l)
}

// GetLogger returns the global logger, falling back to a development
// logger before InitLogger has run
func GetLogger() *zap.Logger {
	if logger == nil {
		logger, _ = zap.NewDevelopment()
	}
	return logger
}

func SyncLogger() {
	if logger != nil {
		_ = logger.Sync()
	}
}
