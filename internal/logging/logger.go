// Package logging builds the logrus loggers shared by the server binaries.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

// New creates a logger writing to w. Unknown levels fall back to info and
// any format other than "text" produces JSON.
func New(level, format string, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)

	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	return logger
}

// FromConfig creates a logger from the logging section. Output "stderr"
// writes to standard error, anything else to standard output.
func FromConfig(cfg domain.LoggingConfig) *logrus.Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return New(cfg.Level, cfg.Format, w)
}
