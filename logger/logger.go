// Package logger holds the process wide zap logger
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// FileOptions configures rotated file output, teed with the console
type FileOptions struct {
	// Path of the log file, empty disables file output
	Path string `yaml:"path"`
	// MaxSizeMB is the size a file grows to before it is rotated
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// InitProduction sets up a JSON logger at info level
func InitProduction(file FileOptions) error {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return build(cfg, file)
}

// InitDevelopment sets up a human friendly console logger at debug level
func InitDevelopment(file FileOptions) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return build(cfg, file)
}

func build(cfg zap.Config, file FileOptions) error {
	l, err := cfg.Build()

	if err != nil {
		return err
	}

	if file.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   file.Path,
			MaxSize:    file.MaxSizeMB,
			MaxBackups: file.MaxBackups,
			MaxAge:     file.MaxAgeDays,
			Compress:   file.Compress,
		}

		// files are always JSON so they can be ingested
		fileCore := zapcore.NewCore(
			zapcore.NewJSONEncoder(cfg.EncoderConfig),
			zapcore.AddSync(rotator),
			cfg.Level,
		)

		l = l.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	setLogger(l)
	return nil
}

// setLogger replaces the package and zap global loggers
func setLogger(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()

	zap.ReplaceGlobals(l)

	if log != nil {
		_ = log.Sync()
	}

	log = l
	sugar = l.Sugar()
}

// Log returns the logger, never nil
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()

	if log != nil {
		return log
	}

	// not initialised yet, zap's global is a no-op logger
	return zap.L()
}

// S returns the sugared logger, never nil
func S() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()

	if sugar != nil {
		return sugar
	}

	return zap.S()
}

// Sync flushes buffered log entries
func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()

	if log != nil {
		_ = log.Sync()
	}
}

// Fatal logs the message and exits with status 1
func Fatal(msg string, fields ...zap.Field) {
	Log().Error(msg, fields...)
	Sync()
	os.Exit(1)
}
