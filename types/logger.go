package types

// Logger receives the controller's structured log output: state transitions,
// prefetch outcomes, switch decisions and storage degradation.
//
// Compatible with zap.SugaredLogger and other structured loggers.
// All methods accept key-value pairs for structured fields. Loggers built with
// NewSlogLogger get a "session_id" field attached by the controller.
type Logger interface {
	// Debug logs per-asset fetches, ignored messages and trigger bookkeeping.
	Debug(msg string, keysAndValues ...any)

	// Info logs state transitions, prefetch results and completed switches.
	Info(msg string, keysAndValues ...any)

	// Warn logs configuration warnings, rejected messages and degraded storage.
	Warn(msg string, keysAndValues ...any)

	// Error logs failures reported to the OnError hook.
	Error(msg string, keysAndValues ...any)

	// Fatal logs a message at FatalLevel and then calls os.Exit(1).
	// The controller itself never calls it.
	Fatal(msg string, keysAndValues ...any)
}
