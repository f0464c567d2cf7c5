package history

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSinkWritesEvent(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	sink := NewLogSink(log)
	defer func() { _ = sink.Close() }()

	err := sink.Send(context.Background(), Event{
		Type:       EventReboot,
		OccurredAt: time.Now(),
		Instance:   "alpha",
		PID:        42,
		Port:       6001,
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "session event")
	assert.Contains(t, out, "type=reboot")
	assert.Contains(t, out, "instance=alpha")
}

func TestLogSinkDefaultsLogger(t *testing.T) {
	sink := NewLogSink(nil)
	assert.NoError(t, sink.Send(context.Background(), Event{Type: EventExited}))
}
