package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategoryAttempt LogCategory = "attempt" // One line per strategy attempt (JSON)
	CategoryError   LogCategory = "error"   // Application errors (JSON)
)

// Categories lists every category written by MultiLogger
var Categories = []LogCategory{CategoryAttempt, CategoryError}

// MultiLogger writes categorized JSON logs to <category>-YYYYMMDD.log files and
// rolls over to a new file when the date changes.
// Raw external tool output is not routed through here; see the tool log.
type MultiLogger struct {
	config MultiLoggerConfig
	now    func() time.Time

	mu          sync.Mutex
	loggers     map[LogCategory]*zap.Logger
	files       map[LogCategory]*os.File
	currentDate string
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}
	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{config: config, now: time.Now}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if err := ml.openLocked(ml.now().Format("20060102")); err != nil {
		return nil, err
	}
	return ml, nil
}

// openLocked (re)creates the per-category loggers for date
func (ml *MultiLogger) openLocked(date string) error {
	level, err := zapcore.ParseLevel(ml.config.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	loggers := make(map[LogCategory]*zap.Logger, len(Categories))
	files := make(map[LogCategory]*os.File, len(Categories))
	for _, category := range Categories {
		categoryLevel := level
		if category == CategoryError {
			categoryLevel = zapcore.ErrorLevel
		}

		path := filepath.Join(ml.config.LogsDir, fmt.Sprintf("%s-%s.log", category, date))
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			for _, f := range files {
				f.Close()
			}
			return fmt.Errorf("failed to open %s log: %w", category, err)
		}
		files[category] = file
		loggers[category] = zap.New(zapcore.NewCore(jsonEncoder(), zapcore.AddSync(file), categoryLevel))
	}

	ml.closeLocked()
	ml.loggers = loggers
	ml.files = files
	ml.currentDate = date
	return nil
}

func jsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""
	return zapcore.NewJSONEncoder(encoderConfig)
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the logger for category, rolling files over on a date change
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	if ml.loggers == nil {
		return zap.NewNop()
	}
	if date := ml.now().Format("20060102"); date != ml.currentDate {
		if err := ml.openLocked(date); err != nil {
			// keep writing to yesterday's files rather than dropping entries
			fmt.Fprintf(os.Stderr, "log rotation failed: %v\n", err)
		}
	}

	if logger, ok := ml.loggers[category]; ok {
		return logger
	}
	return ml.loggers[CategoryError]
}

// Attempt returns the attempt logger
func (ml *MultiLogger) Attempt() *zap.Logger {
	return ml.GetLogger(CategoryAttempt)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAttempt records one strategy attempt
func (ml *MultiLogger) LogAttempt(event string, fields ...zap.Field) {
	ml.Attempt().Info(event, fields...)
}

// LogAppError logs an application-level error
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// Sync flushes all loggers
func (ml *MultiLogger) Sync() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()

	var lastErr error
	for _, logger := range ml.loggers {
		if err := logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes every log file
func (ml *MultiLogger) Close() error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.closeLocked()
}

func (ml *MultiLogger) closeLocked() error {
	var lastErr error
	for _, logger := range ml.loggers {
		logger.Sync()
	}
	for _, f := range ml.files {
		if err := f.Close(); err != nil {
			lastErr = err
		}
	}
	ml.loggers = nil
	ml.files = nil
	return lastErr
}
