package logging

import (
	"bytes"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

// Logger is a wrapper around the log.Logger from the charmbracelet/log package.
type Logger struct {
	*log.Logger
	Buffer *bytes.Buffer
}

var (
	logger *Logger
	once   sync.Once
)

// CreateLogger sets up the process-wide logger. It must be called before using
// the package-level logging functions.
func CreateLogger() {
	once.Do(func() {
		baseLogger := log.New(os.Stderr)

		// DEBUG=1 enables verbose output with caller information
		if os.Getenv("DEBUG") == "1" {
			baseLogger = log.NewWithOptions(os.Stderr, log.Options{
				ReportCaller:    true,
				ReportTimestamp: true,
				Prefix:          "filevault",
			})

			baseLogger.SetLevel(log.DebugLevel)
		} else {
			baseLogger.SetLevel(log.InfoLevel)
		}

		logger = &Logger{Logger: baseLogger}
	})
}

// NewTestLogger returns a logger that writes into an in-memory buffer so tests
// can inspect the emitted output.
func NewTestLogger() *Logger {
	var buf bytes.Buffer
	baseLogger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false,
	})
	baseLogger.SetLevel(log.DebugLevel)
	return &Logger{Logger: baseLogger, Buffer: &buf}
}

// GetOutput returns everything the test logger has written so far.
func (l *Logger) GetOutput() string {
	if l.Buffer == nil {
		return ""
	}
	return l.Buffer.String()
}

// BaseLogger returns the underlying *log.Logger from the custom Logger.
func (l *Logger) BaseLogger() *log.Logger {
	return l.Logger
}

// GetLogger returns the Logger instance.
func GetLogger() *Logger {
	ensureInitialized()
	return logger
}

// Debug logs debug messages if debug logging is enabled.
func Debug(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Debug(msg, keyvals...)
}

// Info logs informational messages.
func Info(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Info(msg, keyvals...)
}

// Warn logs warning messages.
func Warn(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Warn(msg, keyvals...)
}

// Error logs error messages.
func Error(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Error(msg, keyvals...)
}

// Fatal logs a fatal message and exits the program.
func Fatal(msg interface{}, keyvals ...interface{}) {
	ensureInitialized()
	logger.Fatal(msg, keyvals...)
}

// ResetForTest clears the package-level logger so tests can reinitialize it.
func ResetForTest() {
	logger = nil
	once = sync.Once{}
}

// ensureInitialized ensures the logger is initialized before use.
func ensureInitialized() {
	if logger == nil {
		CreateLogger()
	}
}
