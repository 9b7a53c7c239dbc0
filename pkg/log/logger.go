package log

import "context"

// Logger is the structured logging surface used uniformly across the
// broker, the collection worker, and the intake surfaces. Levels beyond
// the stdlib's Info/Error split are kept because the broker and worker
// need to distinguish operator-actionable conditions (Alert, Critical,
// Emergency) from routine noise (Debug, Notice).
type Logger interface {
	Info(ctx context.Context, format string, args ...interface{})
	Alert(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Debug(ctx context.Context, format string, args ...interface{})
	Notice(ctx context.Context, format string, args ...interface{})
	Critical(ctx context.Context, format string, args ...interface{})
	Emergency(ctx context.Context, format string, args ...interface{})
}

func NewLogger(logger Logger) (Logger, error) {
	return logger, nil
}
