// Package logging builds the logrus logger shared by xenodash commands.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// New returns a text logger writing to w at info level, or debug level when
// verbose is set. Logs never go to stdout so JSON output stays parseable.
func New(w io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	log.SetLevel(Level(verbose))
	return log
}

// Level maps the --verbose flag to a log level.
func Level(verbose bool) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}
