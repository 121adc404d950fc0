package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// New builds the process logger. Console output is colored only when it goes
// to a terminal; file output is created along with its directory.
func New(config Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	out, tty, err := openOutput(config.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %q: %w", config.OutputPath, err)
	}

	core := zapcore.NewCore(newEncoder(config.Format, tty), out, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func newEncoder(format string, color bool) zapcore.Encoder {
	if format == "json" {
		cfg := zap.NewProductionEncoderConfig()
		cfg.TimeKey = "ts"
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(cfg)
	}

	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

// openOutput resolves path to a sink and reports whether it is a terminal
func openOutput(path string) (zapcore.WriteSyncer, bool, error) {
	var f *os.File
	switch path {
	case "", "stdout":
		f = os.Stdout
	case "stderr":
		f = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, false, err
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, false, err
		}
		return zapcore.AddSync(file), false, nil
	}
	return zapcore.Lock(f), isTerminal(f), nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
