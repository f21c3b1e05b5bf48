package logging

import "go.uber.org/zap/zapcore"

// Category helpers. Each pair logs at info and debug level; error
// variants exist where callers report failures.

func Boot(format string, args ...any)      { logf(CategoryBoot, zapcore.InfoLevel, format, args...) }
func BootDebug(format string, args ...any) { logf(CategoryBoot, zapcore.DebugLevel, format, args...) }

func Session(format string, args ...any) { logf(CategorySession, zapcore.InfoLevel, format, args...) }
func SessionDebug(format string, args ...any) {
	logf(CategorySession, zapcore.DebugLevel, format, args...)
}
func SessionError(format string, args ...any) {
	logf(CategorySession, zapcore.ErrorLevel, format, args...)
}

func Gateway(format string, args ...any) { logf(CategoryGateway, zapcore.InfoLevel, format, args...) }
func GatewayDebug(format string, args ...any) {
	logf(CategoryGateway, zapcore.DebugLevel, format, args...)
}
func GatewayWarn(format string, args ...any) {
	logf(CategoryGateway, zapcore.WarnLevel, format, args...)
}
func GatewayError(format string, args ...any) {
	logf(CategoryGateway, zapcore.ErrorLevel, format, args...)
}

func Tools(format string, args ...any)      { logf(CategoryTools, zapcore.InfoLevel, format, args...) }
func ToolsDebug(format string, args ...any) { logf(CategoryTools, zapcore.DebugLevel, format, args...) }
func ToolsError(format string, args ...any) { logf(CategoryTools, zapcore.ErrorLevel, format, args...) }

func Orchestrator(format string, args ...any) {
	logf(CategoryOrchestrator, zapcore.InfoLevel, format, args...)
}
func OrchestratorDebug(format string, args ...any) {
	logf(CategoryOrchestrator, zapcore.DebugLevel, format, args...)
}
func OrchestratorError(format string, args ...any) {
	logf(CategoryOrchestrator, zapcore.ErrorLevel, format, args...)
}

func Context(format string, args ...any) { logf(CategoryContext, zapcore.InfoLevel, format, args...) }
func ContextDebug(format string, args ...any) {
	logf(CategoryContext, zapcore.DebugLevel, format, args...)
}

func Skills(format string, args ...any) { logf(CategorySkills, zapcore.InfoLevel, format, args...) }
func SkillsDebug(format string, args ...any) {
	logf(CategorySkills, zapcore.DebugLevel, format, args...)
}

func Browser(format string, args ...any) { logf(CategoryBrowser, zapcore.InfoLevel, format, args...) }
func BrowserDebug(format string, args ...any) {
	logf(CategoryBrowser, zapcore.DebugLevel, format, args...)
}

// Audit records sandbox boundary violations distinctly so they can be
// reviewed separately from ordinary tool errors.
func Audit(format string, args ...any) { logf(CategoryAudit, zapcore.WarnLevel, format, args...) }
