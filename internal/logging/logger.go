// Package logging provides categorized, debug-gated logging for cortex.
// Logs are written to .cortex/logs/ with one file per category, built on
// zap cores. When debug mode is disabled the whole package is a no-op.
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

// Category names a logging subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and factory wiring
	CategoryStore     Category = "store"     // Vector store operations
	CategoryWorld     Category = "world"     // Indexing, hashing, graphs, watcher
	CategoryEmbedding Category = "embedding" // Embedding engines
	CategoryPlan      Category = "plan"      // Query planner decisions
	CategoryRetrieval Category = "retrieval" // Context retrieval pipeline
	CategoryBrains    Category = "brains"    // Brain registry and stages
	CategoryScheduler Category = "scheduler" // Brain-chain scheduler
	CategoryTools     Category = "tools"     // Tool gate
	CategoryMemory    Category = "memory"    // Working/conversation memory
	CategoryQuality   Category = "quality"   // Quality gates and supervisor
	CategoryUsage     Category = "usage"     // Token budget service
	CategoryTimeline  Category = "timeline"  // Request timelines
	CategoryAPI       Category = "api"       // LLM provider calls
)

// Options controls logger initialization.
type Options struct {
	DebugMode  bool
	Level      string          // debug | info | warn | error
	Categories map[string]bool // nil = all enabled
}

var (
	mu          sync.RWMutex
	loggers     = make(map[Category]*Logger)
	logsDir     string
	opts        Options
	initialized bool
	minLevel    zapcore.Level
)

// Logger wraps a zap sugared logger bound to one category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
	enabled  bool
}

// Initialize sets up the logging directory. Call once at startup with the
// workspace path. With DebugMode false, loggers still hand out but write
// nothing.
func Initialize(workspace string, o Options) error {
	mu.Lock()
	defer mu.Unlock()

	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	opts = o
	switch o.Level {
	case "debug":
		minLevel = zapcore.DebugLevel
	case "warn", "warning":
		minLevel = zapcore.WarnLevel
	case "error":
		minLevel = zapcore.ErrorLevel
	default:
		minLevel = zapcore.InfoLevel
	}

	loggers = make(map[Category]*Logger)
	initialized = true

	if !o.DebugMode {
		return nil
	}

	logsDir = filepath.Join(workspace, ".cortex", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	return nil
}

// IsDebugMode reports whether file logging is active.
func IsDebugMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return initialized && opts.DebugMode
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	mu.RLock()
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
	l := newLogger(category)
	loggers[category] = l
	return l
}

func newLogger(category Category) *Logger {
	enabled := initialized && opts.DebugMode
	if enabled && opts.Categories != nil {
		if on, found := opts.Categories[string(category)]; found && !on {
			enabled = false
		}
	}
	if !enabled {
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	path := filepath.Join(logsDir, string(category)+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] cannot open %s: %v\n", path, err)
		return &Logger{category: category, sugar: zap.NewNop().Sugar()}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(file),
		minLevel,
	)
	sugar := zap.New(core).Sugar().Named(string(category))
	return &Logger{category: category, sugar: sugar, enabled: true}
}

// Debug logs at debug level (printf style).
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}

// Sync flushes all open category loggers.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, l := range loggers {
		_ = l.sugar.Sync()
	}
}

// Convenience helpers for the hottest categories, mirroring call sites like
// logging.World("indexed %d files", n).

func World(format string, args ...interface{})     { Get(CategoryWorld).Info(format, args...) }
func WorldDebug(format string, args ...interface{}) { Get(CategoryWorld).Debug(format, args...) }
func Store(format string, args ...interface{})     { Get(CategoryStore).Info(format, args...) }
func Scheduler(format string, args ...interface{}) { Get(CategoryScheduler).Info(format, args...) }
func SchedulerDebug(format string, args ...interface{}) {
	Get(CategoryScheduler).Debug(format, args...)
}
func Retrieval(format string, args ...interface{}) { Get(CategoryRetrieval).Info(format, args...) }
func Plan(format string, args ...interface{})      { Get(CategoryPlan).Info(format, args...) }
func Brains(format string, args ...interface{})    { Get(CategoryBrains).Info(format, args...) }
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }
func Memory(format string, args ...interface{})    { Get(CategoryMemory).Info(format, args...) }
func Quality(format string, args ...interface{})   { Get(CategoryQuality).Info(format, args...) }
func Tools(format string, args ...interface{})     { Get(CategoryTools).Info(format, args...) }
func Usage(format string, args ...interface{})     { Get(CategoryUsage).Info(format, args...) }
func Timeline(format string, args ...interface{})  { Get(CategoryTimeline).Info(format, args...) }

// Timer measures one named operation within a category.
type Timer struct {
	category Category
	name     string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, name string) *Timer {
	return &Timer{category: category, name: name, start: time.Now()}
}

// Stop logs the elapsed time at debug level and returns the duration.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.name, elapsed)
	return elapsed
}
