// Package logging provides config-driven categorized logging for qoze.
// Logs are written to .qoze/logs/ with a separate file per category,
// backed by zap. When debug mode is off no files are written and every
// helper is a no-op, so packages can log unconditionally.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup and wiring
	CategorySession      Category = "session"      // Session lifecycle, persistence
	CategoryGateway      Category = "gateway"      // LLM API calls, retries, streaming
	CategoryTools        Category = "tools"        // Tool registry and dispatch
	CategoryOrchestrator Category = "orchestrator" // ReAct loop state transitions
	CategoryContext      Category = "context"      // Context budget, summarization
	CategorySkills       Category = "skills"       // Skill discovery and loading
	CategoryBrowser      Category = "browser"      // Browser automation
	CategoryAudit        Category = "audit"        // Sandbox boundary violations
)

var (
	mu      sync.RWMutex
	loggers = make(map[Category]*zap.SugaredLogger)
	enabled bool
	level   zapcore.Level = zapcore.DebugLevel
	logsDir string
)

// Options controls logger initialization.
type Options struct {
	// DebugMode enables file logging. When false nothing is written.
	DebugMode bool

	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string

	// Categories optionally restricts logging to listed categories.
	// Empty means all categories.
	Categories map[string]bool
}

var categoryFilter map[string]bool

// Initialize sets up the logging directory. Should be called once at
// startup with the workspace path. Safe to skip entirely in tests.
func Initialize(workspace string, opts Options) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	mu.Lock()
	defer mu.Unlock()

	enabled = opts.DebugMode
	if !enabled {
		return nil
	}

	if err := level.Set(opts.Level); err != nil {
		level = zapcore.DebugLevel
	}
	categoryFilter = opts.Categories

	logsDir = filepath.Join(workspace, ".qoze", "logs")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		enabled = false
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	return nil
}

// Shutdown flushes and closes all category loggers.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		_ = l.Sync()
	}
	loggers = make(map[Category]*zap.SugaredLogger)
	enabled = false
}

// get returns the sugared logger for a category, creating it lazily.
// Returns nil when logging is disabled or the category is filtered out.
func get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if !enabled {
		mu.RUnlock()
		return nil
	}
	if categoryFilter != nil {
		if on, ok := categoryFilter[string(cat)]; ok && !on {
			mu.RUnlock()
			return nil
		}
	}
	if l, ok := loggers[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}

	path := filepath.Join(logsDir, string(cat)+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(f),
		level,
	)
	l := zap.New(core).Sugar().With("cat", string(cat))
	loggers[cat] = l
	return l
}

func logf(cat Category, lvl zapcore.Level, format string, args ...any) {
	l := get(cat)
	if l == nil {
		return
	}
	switch lvl {
	case zapcore.DebugLevel:
		l.Debugf(format, args...)
	case zapcore.InfoLevel:
		l.Infof(format, args...)
	case zapcore.WarnLevel:
		l.Warnf(format, args...)
	case zapcore.ErrorLevel:
		l.Errorf(format, args...)
	}
}
