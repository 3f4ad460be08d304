// Package logging builds the zap loggers used across the service.
package logging

import (
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level and output encoding.
type Config struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`
	// Encoding is "console" or "json".
	Encoding string `json:"encoding" yaml:"encoding"`
}

// NewLoggerConfig returns a console config with ISO8601 times, short callers
// and no stacktraces.
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger builds a logger from cfg. Empty fields keep the defaults of
// NewLoggerConfig.
func NewLogger(cfg Config) (*zap.Logger, error) {
	zcfg := NewLoggerConfig()

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "log level %q", cfg.Level)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	switch strings.ToLower(cfg.Encoding) {
	case "", "console":
	case "json":
		zcfg.Encoding = "json"
		zcfg.EncoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		zcfg.EncoderConfig.EncodeDuration = zapcore.MillisDurationEncoder
	default:
		return nil, errors.Errorf("unknown log encoding %q", cfg.Encoding)
	}

	return zcfg.Build()
}
