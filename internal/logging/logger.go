// Package logging builds the zap loggers used by the feedback tool.
// Each subsystem logs under its own category name; categories can be
// silenced individually through config.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"agentfeedback/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryCLI      Category = "cli"      // Command dispatch and output
	CategoryStore    Category = "store"    // Record persistence, locking, scans
	CategorySecurity Category = "security" // Path guard decisions
	CategoryWatch    Category = "watch"    // Partition change notifications
)

// Logger hands out category loggers that share one set of sinks.
type Logger struct {
	base *zap.Logger
	cfg  config.LoggingConfig
	file *os.File

	mu      sync.Mutex
	loggers map[Category]*zap.Logger
}

// New builds a Logger from config. Human or JSON output goes to console;
// when cfg.File is set, JSON entries are also appended there.
func New(cfg config.LoggingConfig, console io.Writer) (*Logger, error) {
	level := ParseLevel(cfg.Level)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var consoleEnc zapcore.Encoder
	if strings.EqualFold(cfg.Format, "json") {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		textCfg := encCfg
		textCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(textCfg)
	}
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.AddSync(console), level),
	}

	l := &Logger{cfg: cfg, loggers: make(map[Category]*zap.Logger)}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		l.file = f
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level))
	}

	l.base = zap.New(zapcore.NewTee(cores...))
	return l, nil
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{base: zap.NewNop(), loggers: make(map[Category]*zap.Logger)}
}

// ParseLevel maps a config level to a zap level. Unknown values mean info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Get returns (or creates) the logger for a category. Disabled categories
// get a no-op logger.
func (l *Logger) Get(category Category) *zap.Logger {
	l.mu.Lock()
	defer l.mu.Unlock()

	if zl, ok := l.loggers[category]; ok {
		return zl
	}
	zl := zap.NewNop()
	if l.cfg.IsCategoryEnabled(string(category)) {
		zl = l.base.Named(string(category))
	}
	l.loggers[category] = zl
	return zl
}

// Base returns the uncategorized logger.
func (l *Logger) Base() *zap.Logger {
	return l.base
}

// Close flushes buffered entries and closes the log file, if any.
func (l *Logger) Close() error {
	_ = l.base.Sync()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
