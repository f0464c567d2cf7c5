package interop

import (
	"errors"
	"sync"
)

// ErrTokenInUse is returned when a second controller registers under a token
// that is already claimed. Tokens are cryptographically unguessable, so a
// collision indicates a bug in the caller, not contention.
var ErrTokenInUse = errors.New("interop: access identifier already registered")

// Channel is the shared dispatch table routing worker queries to the owning
// session controller, keyed by access identifier. It is an injected
// capability, never process-wide ambient state, and is safe for concurrent
// use.
type Channel struct {
	mu       sync.RWMutex
	sessions map[string]Handler
}

func NewChannel() *Channel {
	return &Channel{sessions: make(map[string]Handler)}
}

// Register claims token for h. Controllers register at construction and must
// Unregister on disposal.
func (c *Channel) Register(token string, h Handler) error {
	if token == "" {
		return errors.New("interop: empty access identifier")
	}
	if h == nil {
		return errors.New("interop: nil handler")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.sessions[token]; ok {
		return ErrTokenInUse
	}
	c.sessions[token] = h
	return nil
}

// Unregister releases token. Unknown tokens are ignored.
func (c *Channel) Unregister(token string) {
	c.mu.Lock()
	delete(c.sessions, token)
	c.mu.Unlock()
}

// Lookup resolves the handler registered under token.
func (c *Channel) Lookup(token string) (Handler, bool) {
	c.mu.RLock()
	h, ok := c.sessions[token]
	c.mu.RUnlock()
	return h, ok
}
