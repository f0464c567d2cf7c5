package interop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{ resp Response }

func (h *echoHandler) HandleInterop(_ context.Context, _ Request) Response { return h.resp }

func TestParseCommand(t *testing.T) {
	cases := map[string]Command{
		"identify":     CommandIdentify,
		"online":       CommandOnline,
		"api-validate": CommandAPIValidate,
		"world-reboot": CommandWorldReboot,
		"":             CommandUnsupported,
		"IDENTIFY":     CommandUnsupported,
		"reboot":       CommandUnsupported,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseCommand(in), "command %q", in)
	}
}

func TestCommandString(t *testing.T) {
	for _, c := range []Command{CommandIdentify, CommandOnline, CommandAPIValidate, CommandWorldReboot} {
		assert.Equal(t, c, ParseCommand(c.String()))
	}
	assert.Equal(t, "unsupported", CommandUnsupported.String())
}

func TestRegisterRejectsDuplicateToken(t *testing.T) {
	ch := NewChannel()
	h := &echoHandler{resp: OK(nil)}

	require.NoError(t, ch.Register("tok-1", h))
	err := ch.Register("tok-1", h)
	require.ErrorIs(t, err, ErrTokenInUse)

	// A different token is fine.
	require.NoError(t, ch.Register("tok-2", h))
}

func TestRegisterValidation(t *testing.T) {
	ch := NewChannel()
	assert.Error(t, ch.Register("", &echoHandler{}))
	assert.Error(t, ch.Register("tok", nil))
}

func TestUnregisterFreesToken(t *testing.T) {
	ch := NewChannel()
	h := &echoHandler{resp: OK(nil)}

	require.NoError(t, ch.Register("tok", h))
	ch.Unregister("tok")

	_, ok := ch.Lookup("tok")
	assert.False(t, ok)
	require.NoError(t, ch.Register("tok", h), "token reusable after unregister")

	// Unknown tokens are ignored.
	ch.Unregister("never-registered")
}
