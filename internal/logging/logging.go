// Package logging wires up the structured logger shared by every
// component: the analysis pipeline, the catalog, and the HTTP server.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logrus logger configured the way every long-running
// component in this repo expects: text output on a TTY, JSON otherwise,
// level driven by MUSIM_LOG_LEVEL (default "info").
func New(component string) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(os.Getenv("MUSIM_LOG_LEVEL"))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if fi, statErr := os.Stderr.Stat(); statErr == nil && (fi.Mode()&os.ModeCharDevice) != 0 {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	return l.WithField("component", component)
}
