package history

import (
	"context"
	"log/slog"
)

// LogSink writes events to the supervisor's structured log. It is the
// default sink when no analytics backend is configured.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Send(_ context.Context, e Event) error {
	s.log.Info("session event",
		"type", string(e.Type),
		"instance", e.Instance,
		"pid", e.PID,
		"port", e.Port,
		"detail", e.Detail,
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
