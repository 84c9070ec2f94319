package core

// Logger is any leveled logger.
// args may carry an error, a map of extra fields, or a chat user for error reporting context.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
