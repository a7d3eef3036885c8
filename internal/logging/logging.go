// Package logging configures the application logger. The terminal is
// owned by the UI, so all log output goes to a file.
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Setup configures the shared logrus logger to write to the given file
// at the given level. A file that cannot be opened silences logging
// rather than corrupting the UI. The returned closer flushes the file
// on shutdown; it is non-nil even when logging is silenced.
func Setup(level, file string) io.Closer {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)

	if file == "" {
		logrus.SetOutput(io.Discard)
		return nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		logrus.SetOutput(io.Discard)
		return nopCloser{}
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logrus.SetOutput(io.Discard)
		return nopCloser{}
	}

	logrus.SetOutput(f)
	return f
}

// Component returns a child logger tagged with the component name.
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
