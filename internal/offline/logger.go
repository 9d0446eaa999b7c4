package offline

// Logger provides structured logging for the offline layer.
// The args follow slog conventions: alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger is a Logger that discards all output. Use in tests.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// submissionFields returns the log attributes that identify a screening
// without carrying its answers, score or user.
func submissionFields(sub *ScreeningSubmission, extra ...any) []any {
	fields := []any{"id", sub.ID, "type", sub.Type, "status", sub.Status}
	return append(fields, extra...)
}
