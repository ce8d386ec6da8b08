// Package log holds the process-wide logger. Diagnostics go to stderr so
// command output on stdout stays machine-readable.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// SetLevel parses level ("debug", "info", "warn", ...) and applies it.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	Log.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}
