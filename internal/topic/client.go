// Package topic implements the supervisor-to-engine command transport:
// fire-and-forget datagrams carrying a query string, answered with a short
// text token. The exchange is stateless; retries belong to the caller.
package topic

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/loykin/warden/internal/metrics"
)

// Outbound command names and parameters understood by the engine.
const (
	CommandChangePort       = "change_port"
	CommandChangeRebootMode = "change_reboot_mode"

	ParamAccessIdentifier = "access_identifier"
	ParamCommand          = "command"
	ParamNewPort          = "new_port"
	ParamMode             = "mode"
)

// successReply is the engine's acknowledgement literal.
const successReply = "OK"

// defaultTimeout bounds the reply wait when the context carries no deadline.
const defaultTimeout = 5 * time.Second

// Commander is the narrow interface the session layer depends on.
type Commander interface {
	Send(ctx context.Context, port uint16, token, command string, params map[string]string) error
}

// Client sends topic datagrams to the engine's loopback port.
type Client struct {
	log *slog.Logger
}

func NewClient(log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{log: log}
}

// Send issues one command and waits for the acknowledgement. Cancellation
// aborts the reply wait but cannot retract an already-sent datagram; the
// engine may still act on it.
func (c *Client) Send(ctx context.Context, port uint16, token, command string, params map[string]string) error {
	err := c.send(ctx, port, token, command, params)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.IncTopicSend(command, outcome)
	return err
}

func (c *Client) send(ctx context.Context, port uint16, token, command string, params map[string]string) error {
	if port == 0 {
		return fmt.Errorf("topic: no port to send %q to", command)
	}
	q := url.Values{}
	q.Set(ParamAccessIdentifier, token)
	q.Set(ParamCommand, command)
	for k, v := range params {
		q.Set(k, v)
	}
	payload := "?" + q.Encode()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("topic: dial port %d: %w", port, err)
	}
	defer func() { _ = conn.Close() }()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("topic: set deadline: %w", err)
	}

	if _, err := conn.Write([]byte(payload)); err != nil {
		return fmt.Errorf("topic: send %q: %w", command, err)
	}

	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("topic: await reply to %q: %w", command, err)
	}
	reply := strings.TrimSpace(string(buf[:n]))
	if reply != successReply {
		c.log.Debug("engine rejected topic command", "command", command, "reply", reply)
		return fmt.Errorf("topic: engine rejected %q: %s", command, reply)
	}
	return nil
}
