package warden

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"runtime"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestSessionFacadeLaunchRelease(t *testing.T) {
	requireUnix(t)
	proc, err := Launch("/bin/sleep", []string{"5"}, ProcessOptions{})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	st, err := OpenStore(StoreConfig{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ch := NewChannel()
	ctrl, err := NewController(ControllerOptions{
		Process:   proc,
		Record:    ReattachRecord{Instance: "w1", AccessToken: NewAccessToken(), Port: 6001},
		Channel:   ch,
		Commander: NewTopicClient(nil),
		Store:     st,
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if p, _ := ctrl.Port(); p != 6001 {
		t.Fatalf("port = %d, want 6001", p)
	}
	rec, art, err := ctrl.Release(context.Background())
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if art != nil {
		t.Fatalf("no artifact was attached, got %+v", art)
	}
	if rec.PID != proc.PID() {
		t.Fatalf("record pid %d, want %d", rec.PID, proc.PID())
	}
	saved, ok, err := st.Load(context.Background(), "w1")
	if err != nil || !ok {
		t.Fatalf("load record: ok=%v err=%v", ok, err)
	}
	if saved.AccessToken != rec.AccessToken {
		t.Fatalf("saved token mismatch")
	}
	// Release detaches; the engine keeps running and must be reaped here.
	if p, err := os.FindProcess(rec.PID); err == nil {
		_ = p.Kill()
	}
}

func TestInteropFacadeEndpoint(t *testing.T) {
	requireUnix(t)
	proc, err := Launch("/bin/sleep", []string{"5"}, ProcessOptions{})
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	ch := NewChannel()
	token := NewAccessToken()
	ctrl, err := NewController(ControllerOptions{
		Process:   proc,
		Record:    ReattachRecord{Instance: "w2", AccessToken: token, Port: 6002},
		Channel:   ch,
		Commander: NewTopicClient(nil),
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	defer func() { _ = ctrl.Dispose(context.Background()) }()

	srv := httptest.NewServer(NewRouter(ch, "").Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/interop?access_identifier=" + token + "&command=api-validate")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}

	bad, err := http.Get(srv.URL + "/interop?access_identifier=nope&command=identify")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = bad.Body.Close()
	if bad.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", bad.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := proc.Terminate(ctx); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	if _, err := ctrl.Lifetime(ctx); err != nil {
		t.Fatalf("lifetime: %v", err)
	}
	validated, err := ctrl.APIValidated()
	if err != nil {
		t.Fatalf("api validated: %v", err)
	}
	if !validated {
		t.Fatalf("api-validate was received, want validated=true")
	}
}

func TestMetricsFacade(t *testing.T) {
	if err := RegisterMetricsDefault(); err != nil {
		t.Fatalf("register: %v", err)
	}
	srv := httptest.NewServer(MetricsHandler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
