// Package log provides the logger sink collaborator named in spec.md §6.
// It wraps gopkg.in/op/go-logging.v1, the same library the teacher's
// server/cborplugin.Client and the original disk.go StateWriter use, and
// hands out one child *logging.Logger per named subsystem the way
// logBackend.GetLogger("client_socket") / GetLogger("client") do.
package log

import (
	"io"
	"os"

	logging "gopkg.in/op/go-logging.v1"
)

// Backend owns the process-wide log format and level, and mints named
// child loggers for each subsystem (codec, session, pipeline, server,
// client) so log lines are attributable at a glance.
type Backend struct {
	level   logging.Level
	backend logging.Backend
}

// NewBackend constructs a Backend writing to w at the given level name
// (one of DEBUG, INFO, NOTICE, WARNING, ERROR, CRITICAL). An empty level
// defaults to NOTICE.
func NewBackend(w io.Writer, level string) (*Backend, error) {
	if w == nil {
		w = os.Stderr
	}
	if level == "" {
		level = "NOTICE"
	}
	lvl, err := logging.LogLevel(level)
	if err != nil {
		return nil, err
	}

	format := logging.MustStringFormatter(
		"%{time:2006-01-02 15:04:05.000} %{level:.4s} %{module}: %{message}",
	)
	base := logging.NewLogBackend(w, "", 0)
	formatted := logging.NewBackendFormatter(base, format)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(lvl, "")
	logging.SetBackend(leveled)

	return &Backend{level: lvl, backend: leveled}, nil
}

// GetLogger returns the named child logger. Per go-logging's design the
// backend is process-wide (set once in NewBackend); GetLogger only tags
// the module name that prefixes each line from this subsystem.
func (b *Backend) GetLogger(name string) *logging.Logger {
	return logging.MustGetLogger(name)
}
