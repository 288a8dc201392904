// Package logger provides the project-wide logrus logger.
package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	projectLogger *logrus.Logger
	once          sync.Once
)

// GetProjectLogger returns the shared logger, creating it on first use.
func GetProjectLogger() *logrus.Logger {
	once.Do(func() {
		projectLogger = New(os.Stderr, logrus.InfoLevel)
	})
	return projectLogger
}

// New builds a text logger writing to w.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
		TimestampFormat:  "15:04:05.000",
	})
	return l
}

// SetVerbose switches the shared logger to debug level.
func SetVerbose(verbose bool) {
	l := GetProjectLogger()
	if verbose {
		l.SetLevel(logrus.DebugLevel)
		return
	}
	l.SetLevel(logrus.InfoLevel)
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *logrus.Logger {
	return New(io.Discard, logrus.PanicLevel)
}
