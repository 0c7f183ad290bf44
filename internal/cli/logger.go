package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// mustBuildLogger writes to stderr so command output on stdout stays
// parseable.
func mustBuildLogger(level, format string) *zap.Logger {
	encoding := "json"
	encoderCfg := zap.NewProductionEncoderConfig()
	if useConsole(format, os.Stderr) {
		encoding = "console"
		encoderCfg = zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// useConsole picks the human encoder for "text", and for "auto" when f is a
// terminal.
func useConsole(format string, f *os.File) bool {
	switch format {
	case "text":
		return true
	case "json":
		return false
	default:
		return f != nil && term.IsTerminal(int(f.Fd()))
	}
}
