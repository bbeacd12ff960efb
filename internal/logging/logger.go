// Package logging provides config-driven categorized file-based logging for medinsight.
// Logs are written as JSON lines to <data_dir>/logs/ through a single zap core;
// every category is a named child logger of that core.
// Logging is controlled by logging.debug_mode in config.yaml - when false, no logs are written.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot    Category = "boot"    // Boot/initialization
	CategoryAPI     Category = "api"     // Backend HTTP calls
	CategoryAuth    Category = "auth"    // Sign-in, sign-up, OAuth, sign-out
	CategorySession Category = "session" // Session identifier bootstrap
	CategoryStore   Category = "store"   // Durable client storage
	CategoryChat    Category = "chat"    // Prediction route and chat turns
	CategoryUI      Category = "ui"      // TUI navigation and rendering
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Dir        string
	DebugMode  bool
	Level      string
	Categories map[string]bool
}

var (
	mu      sync.RWMutex
	opts    Options
	base    = zap.NewNop()
	file    *os.File
	loggers = make(map[Category]*zap.Logger)
)

// Initialize sets up the log file and the shared zap core.
// With debug mode off it is a silent no-op and every category logs nowhere.
func Initialize(o Options) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	opts = o
	if !o.DebugMode {
		return nil
	}
	if o.Dir == "" {
		return fmt.Errorf("log directory required")
	}

	logsDir := filepath.Join(o.Dir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	name := fmt.Sprintf("%s_medinsight.log", time.Now().Format("2006-01-02"))
	f, err := os.OpenFile(filepath.Join(logsDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	level, err := zapcore.ParseLevel(o.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), level)

	file = f
	base = zap.New(core)
	base.Named(string(CategoryBoot)).Info("logging initialized",
		zap.String("dir", logsDir),
		zap.String("level", level.String()),
		zap.Int("category_filters", len(o.Categories)))
	return nil
}

// IsDebugMode returns whether debug logging is enabled
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return opts.DebugMode
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabledLocked(category)
}

func categoryEnabledLocked(category Category) bool {
	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) the logger for the given category.
// Returns a no-op logger if debug mode is disabled or the category is disabled.
func Get(category Category) *zap.Logger {
	mu.RLock()
	if !categoryEnabledLocked(category) {
		mu.RUnlock()
		return zap.NewNop()
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l := base.Named(string(category))
	loggers[category] = l
	return l
}

// Sync flushes buffered entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// CloseAll closes the log file (call at shutdown)
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
}

func closeLocked() {
	_ = base.Sync()
	if file != nil {
		_ = file.Close()
		file = nil
	}
	base = zap.NewNop()
	loggers = make(map[Category]*zap.Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// API logs to the api category
func API(msg string, fields ...zap.Field) { Get(CategoryAPI).Info(msg, fields...) }

// APIDebug logs debug to the api category
func APIDebug(msg string, fields ...zap.Field) { Get(CategoryAPI).Debug(msg, fields...) }

// Auth logs to the auth category
func Auth(msg string, fields ...zap.Field) { Get(CategoryAuth).Info(msg, fields...) }

// Session logs to the session category
func Session(msg string, fields ...zap.Field) { Get(CategorySession).Info(msg, fields...) }

// Store logs to the store category
func Store(msg string, fields ...zap.Field) { Get(CategoryStore).Info(msg, fields...) }

// StoreDebug logs debug to the store category
func StoreDebug(msg string, fields ...zap.Field) { Get(CategoryStore).Debug(msg, fields...) }

// Chat logs to the chat category
func Chat(msg string, fields ...zap.Field) { Get(CategoryChat).Info(msg, fields...) }

// ChatDebug logs debug to the chat category
func ChatDebug(msg string, fields ...zap.Field) { Get(CategoryChat).Debug(msg, fields...) }

// UI logs debug to the ui category
func UI(msg string, fields ...zap.Field) { Get(CategoryUI).Debug(msg, fields...) }

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}

// StopWithThreshold logs a warning if the duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("slow operation",
			zap.String("op", t.op), zap.Duration("elapsed", elapsed), zap.Duration("threshold", threshold))
		return elapsed
	}
	Get(t.category).Debug("operation completed", zap.String("op", t.op), zap.Duration("elapsed", elapsed))
	return elapsed
}
