// Package logger builds the process-wide logrus logger.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var std = logrus.StandardLogger()

// New returns a logger writing to out with the given level and format ("json" or "text").
func New(level, format string, out io.Writer) *logrus.Logger {
	l := logrus.New()
	configure(l, level, format, out)
	return l
}

// Init configures the standard logger used by L.
func Init(level, format string) *logrus.Logger {
	configure(std, level, format, os.Stdout)
	return std
}

// L returns the process-wide logger.
func L() *logrus.Logger {
	return std
}

func configure(l *logrus.Logger, level, format string, out io.Writer) {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)

	switch format {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	if out == nil {
		out = os.Stdout
	}
	l.SetOutput(out)
}
