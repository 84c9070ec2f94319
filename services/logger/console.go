package logsvc

import (
	"log"

	"github.com/darasahq/darasa/core"
)

// ConsoleLogger logs to a stdlib logger only. Used in DEV/TEST mode where
// rollbar reporting is disabled.
type ConsoleLogger struct {
	std   *log.Logger
	quiet bool
}

var _ core.Logger = (*ConsoleLogger)(nil)

func NewConsoleLogger(std *log.Logger) *ConsoleLogger {
	return &ConsoleLogger{std: std}
}

// NewQuietLogger discards everything below Fatal. Handy in tests.
func NewQuietLogger() *ConsoleLogger {
	return &ConsoleLogger{std: log.Default(), quiet: true}
}

func (l ConsoleLogger) print(level, msg string, args []interface{}) {
	if l.quiet {
		return
	}
	l.std.Printf("%s: %s", level, msg)
	for _, arg := range args {
		l.std.Printf("%+v", arg)
	}
}

func (l ConsoleLogger) Debug(msg string, args ...interface{}) { l.print("DEBUG", msg, args) }
func (l ConsoleLogger) Info(msg string, args ...interface{})  { l.print("INFO", msg, args) }
func (l ConsoleLogger) Warn(msg string, args ...interface{})  { l.print("WARN", msg, args) }
func (l ConsoleLogger) Error(msg string, args ...interface{}) { l.print("ERROR", msg, args) }

func (l ConsoleLogger) Fatal(msg string, args ...interface{}) {
	l.std.Fatal(msg)
}
