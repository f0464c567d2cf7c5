package topic

import (
	"context"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine answers one datagram with the given reply and records the
// received payload.
func fakeEngine(t *testing.T, reply string) (uint16, <-chan string) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 1024)
		n, addr, rerr := conn.ReadFrom(buf)
		if rerr != nil {
			return
		}
		got <- string(buf[:n])
		if reply != "" {
			_, _ = conn.WriteTo([]byte(reply), addr)
		}
	}()
	port := conn.LocalAddr().(*net.UDPAddr).Port
	return uint16(port), got
}

func TestSendSuccess(t *testing.T) {
	port, got := fakeEngine(t, "OK")
	c := NewClient(nil)

	err := c.Send(context.Background(), port, "secret-token", CommandChangePort,
		map[string]string{ParamNewPort: "7001"})
	require.NoError(t, err)

	payload := <-got
	require.True(t, strings.HasPrefix(payload, "?"))
	q, err := url.ParseQuery(strings.TrimPrefix(payload, "?"))
	require.NoError(t, err)
	assert.Equal(t, "secret-token", q.Get(ParamAccessIdentifier))
	assert.Equal(t, CommandChangePort, q.Get(ParamCommand))
	assert.Equal(t, "7001", q.Get(ParamNewPort))
}

func TestSendRejectedReply(t *testing.T) {
	port, _ := fakeEngine(t, "world busy")
	c := NewClient(nil)

	err := c.Send(context.Background(), port, "tok", CommandChangeRebootMode,
		map[string]string{ParamMode: "shutdown"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "world busy")
}

func TestSendCancellation(t *testing.T) {
	// Engine that never replies: the context deadline aborts the wait.
	port, _ := fakeEngine(t, "")
	c := NewClient(nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Send(ctx, port, "tok", CommandChangePort, map[string]string{ParamNewPort: "1"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSendZeroPortRejected(t *testing.T) {
	c := NewClient(nil)
	err := c.Send(context.Background(), 0, "tok", CommandChangePort, nil)
	require.Error(t, err)
}
