package logger

import (
	"sync"

	"inventory-service/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu       sync.Mutex
	instance *zap.Logger
)

// Init builds the global logger from configuration. Production gets JSON
// output; anything else the human-friendly development encoder.
func Init(cfg *config.Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = build(cfg.Server.Env, cfg.Log.Level)
	zap.ReplaceGlobals(instance)
}

// GetLogger returns the global logger. If Init was never called, a default
// development logger is built so tests and early startup can still log.
func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if instance == nil {
		instance = build("development", "info")
	}
	return instance
}

func build(env, logLevel string) *zap.Logger {
	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stdout"}

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger
}
