package interop

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/warden/internal/metrics"
)

// Query parameter names of the inbound interop transport.
const (
	ParamAccessIdentifier = "access_identifier"
	ParamCommand          = "command"
)

// Router hosts the loopback interop endpoint the engine queries.
// Endpoint:
//
//	GET {basePath}/interop?access_identifier=...&command=...
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	ch       *Channel
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
func NewRouter(ch *Channel, basePath string) *Router {
	return &Router{ch: ch, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/interop", r.handleInterop)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router. The
// listener is bound synchronously so an unusable address fails here instead
// of silently inside the serve goroutine.
func NewServer(addr, basePath string, ch *Channel) (*http.Server, error) {
	r := NewRouter(ch, basePath)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("interop: listen %s: %w", addr, err)
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if serr := server.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			slog.Error("interop server stopped", "addr", addr, "err", serr)
		}
	}()
	return server, nil
}

func (r *Router) handleInterop(c *gin.Context) {
	token := c.Query(ParamAccessIdentifier)
	h, ok := r.ch.Lookup(token)
	if !ok {
		metrics.IncInterop("unauthenticated", strconv.Itoa(http.StatusUnauthorized))
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid access identifier"})
		return
	}
	raw := c.Query(ParamCommand)
	req := Request{
		Command: ParseCommand(raw),
		Raw:     raw,
		Params:  c.Request.URL.Query(),
	}
	resp := h.HandleInterop(c.Request.Context(), req)
	metrics.IncInterop(req.Command.String(), strconv.Itoa(resp.Status))
	c.JSON(resp.Status, resp.Body)
}

func sanitizeBase(bp string) string {
	bp = strings.TrimSpace(bp)
	if bp == "" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}
