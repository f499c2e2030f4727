package logger

import (
	"os"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	globalLogger *zap.Logger
	once         sync.Once
)

// Init initializes the global logger. Only the first call has an effect.
func Init(level string, development bool) error {
	var err error
	once.Do(func() {
		globalLogger, err = newLogger(level, development)
	})
	return err
}

// Get returns the global logger instance
func Get() *zap.Logger {
	if globalLogger == nil {
		if err := Init(getDefaultLevel(), false); err != nil || globalLogger == nil {
			globalLogger = zap.NewNop()
		}
	}
	return globalLogger
}

// Logr wraps the global logger for components that take a logr.Logger.
func Logr() logr.Logger {
	return zapr.NewLogger(Get())
}

// Sync flushes any buffered log entries
func Sync() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}

func newLogger(level string, development bool) (*zap.Logger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	if development {
		config = zap.NewDevelopmentConfig()
	}
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.CallerKey = "caller"
	// The CLI prints results on stdout; logs go to stderr.
	config.OutputPaths = []string{"stderr"}

	return config.Build()
}

func ParseLevel(level string) (zapcore.Level, error) {
	var zapLevel zapcore.Level
	err := zapLevel.UnmarshalText([]byte(level))
	return zapLevel, err
}

func getDefaultLevel() string {
	if level := os.Getenv("MINDQUERY_LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}
