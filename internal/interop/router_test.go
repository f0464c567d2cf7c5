package interop

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

type recordingHandler struct {
	last Request
	resp Response
}

func (h *recordingHandler) HandleInterop(_ context.Context, req Request) Response {
	h.last = req
	return h.resp
}

func doGet(t *testing.T, h http.Handler, query url.Values) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/interop?"+query.Encode(), nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestRouterRoutesByToken(t *testing.T) {
	ch := NewChannel()
	h := &recordingHandler{resp: OK(map[string]any{"new_port": 7001})}
	require.NoError(t, ch.Register("tok", h))

	handler := NewRouter(ch, "").Handler()
	w, body := doGet(t, handler, url.Values{
		ParamAccessIdentifier: {"tok"},
		ParamCommand:          {"identify"},
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(7001), body["new_port"])
	assert.Equal(t, CommandIdentify, h.last.Command)
	assert.Equal(t, "identify", h.last.Raw)
}

func TestRouterRejectsUnknownToken(t *testing.T) {
	handler := NewRouter(NewChannel(), "").Handler()
	w, body := doGet(t, handler, url.Values{
		ParamAccessIdentifier: {"nope"},
		ParamCommand:          {"online"},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, body["message"], "invalid access identifier")
}

func TestRouterPassesUnsupportedCommandThrough(t *testing.T) {
	ch := NewChannel()
	h := &recordingHandler{resp: BadRequest("unsupported command: frobnicate")}
	require.NoError(t, ch.Register("tok", h))

	handler := NewRouter(ch, "").Handler()
	w, body := doGet(t, handler, url.Values{
		ParamAccessIdentifier: {"tok"},
		ParamCommand:          {"frobnicate"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unsupported command: frobnicate", body["message"])
	assert.Equal(t, CommandUnsupported, h.last.Command)
	assert.Equal(t, "frobnicate", h.last.Raw)
}

func TestRouterBasePath(t *testing.T) {
	ch := NewChannel()
	require.NoError(t, ch.Register("tok", &recordingHandler{resp: OK(nil)}))

	handler := NewRouter(ch, "engine").Handler()
	req := httptest.NewRequest(http.MethodGet,
		"/engine/interop?access_identifier=tok&command=online", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewServerFailsOnBoundAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	_, err = NewServer(ln.Addr().String(), "", NewChannel())
	require.Error(t, err, "bind failure must surface, not vanish in the serve goroutine")
	assert.Contains(t, err.Error(), ln.Addr().String())
}

func TestNewServerServes(t *testing.T) {
	ch := NewChannel()
	require.NoError(t, ch.Register("tok", &recordingHandler{resp: OK(nil)}))

	srv, err := NewServer("127.0.0.1:0", "", ch)
	require.NoError(t, err)
	defer func() { _ = srv.Close() }()
}

func TestSanitizeBase(t *testing.T) {
	assert.Equal(t, "", sanitizeBase(""))
	assert.Equal(t, "/a", sanitizeBase("a"))
	assert.Equal(t, "/a", sanitizeBase("/a/"))
	assert.Equal(t, "/a/b", sanitizeBase("/a/b"))
}
