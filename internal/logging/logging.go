// Package logging holds the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. Packages take entries from it with WithField or
// WithFields instead of creating their own loggers.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stderr)
	Log.SetFormatter(textFormatter())
}

// Config represents the logger configuration.
type Config struct {
	// Level is the minimum log level.
	Level string
	// Format is the log format (text or json).
	Format string
	// Output is a log file path. If empty, use stderr.
	Output string
}

// Init applies cfg to Log. A nil cfg leaves the defaults in place.
func Init(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if cfg.Level != "" {
		level, err := logrus.ParseLevel(cfg.Level)
		if err != nil {
			return err
		}
		Log.SetLevel(level)
	}

	switch cfg.Format {
	case "json":
		Log.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		Log.SetFormatter(textFormatter())
	}

	if cfg.Output != "" {
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		Log.SetOutput(file)
	}

	return nil
}

// SetOutput redirects the shared logger, mainly for tests.
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

// WithField returns an entry carrying one field.
func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

// WithFields returns an entry carrying several fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

// WithError returns an entry carrying err.
func WithError(err error) *logrus.Entry {
	return Log.WithError(err)
}

func textFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "01-02 15:04:05",
	}
}
