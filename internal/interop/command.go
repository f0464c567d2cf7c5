package interop

import (
	"context"
	"net/http"
	"net/url"
)

// Command is the closed set of worker-originated interop commands. The wire
// value is decoded exactly once, at the protocol boundary; everything past
// the router works with the enum.
type Command int

const (
	CommandUnsupported Command = iota
	CommandIdentify
	CommandOnline
	CommandAPIValidate
	CommandWorldReboot
)

// Wire names of the inbound commands.
const (
	wireIdentify    = "identify"
	wireOnline      = "online"
	wireAPIValidate = "api-validate"
	wireWorldReboot = "world-reboot"
)

// ParseCommand decodes a wire command name. Anything unrecognized maps to
// CommandUnsupported.
func ParseCommand(s string) Command {
	switch s {
	case wireIdentify:
		return CommandIdentify
	case wireOnline:
		return CommandOnline
	case wireAPIValidate:
		return CommandAPIValidate
	case wireWorldReboot:
		return CommandWorldReboot
	default:
		return CommandUnsupported
	}
}

func (c Command) String() string {
	switch c {
	case CommandIdentify:
		return wireIdentify
	case CommandOnline:
		return wireOnline
	case CommandAPIValidate:
		return wireAPIValidate
	case CommandWorldReboot:
		return wireWorldReboot
	default:
		return "unsupported"
	}
}

// Request is one decoded worker query.
type Request struct {
	Command Command
	Raw     string // wire command string, for diagnostics
	Params  url.Values
}

// Response carries an HTTP-like status plus a small JSON body.
type Response struct {
	Status int
	Body   map[string]any
}

// OK builds a success response; body may be nil for an empty payload.
func OK(body map[string]any) Response {
	if body == nil {
		body = map[string]any{}
	}
	return Response{Status: http.StatusOK, Body: body}
}

// BadRequest builds a rejection response with a message payload.
func BadRequest(msg string) Response {
	return Response{Status: http.StatusBadRequest, Body: map[string]any{"message": msg}}
}

// Handler is implemented by session controllers registered on a Channel.
type Handler interface {
	HandleInterop(ctx context.Context, req Request) Response
}
