package hfsm

import (
	"fmt"
	"log/slog"
)

// TraceFunc is the abstract diagnostic sink: a single printf-style
// function the core calls on graph inconsistencies, recovered callback
// panics, and events discarded unhandled. It never receives anything the
// core treats as actionable — there is no asynchronous error channel back
// to a caller — and it runs on the worker goroutine, so a TraceFunc that
// blocks will stall the worker exactly like any other callback.
type TraceFunc func(format string, args ...any)

func noopTrace(string, ...any) {}

// WithTrace installs logger as the machine's trace sink, formatting each
// message with fmt.Sprintf and logging it at Debug level. A nil logger
// defaults to slog.Default().
func WithTrace[E any](logger *slog.Logger) MachineOption[E] {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *machineConfig[E]) {
		c.trace = func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...))
		}
	}
}
