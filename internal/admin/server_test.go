package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"loadalert-sim/internal/config"
	"loadalert-sim/internal/export"
	"loadalert-sim/internal/sim"
	"loadalert-sim/internal/telemetry"
)

func newTestServer(t *testing.T) (*Server, *sim.Simulator) {
	t.Helper()
	cfg := config.Default()
	cfg.NoiseStd = 0
	cfg.JumpProbability = 0
	cfg.Initial.Weight = 8
	cfg.Threshold = 10
	s, err := sim.NewSimulator(cfg, nil, sim.WithSessionID("test-session"))
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return NewServer(s), s
}

func do(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleIndex(t *testing.T) {
	srv, s := newTestServer(t)
	if err := s.Step(context.Background(), 1); err != nil {
		t.Fatalf("Step: %v", err)
	}
	w := do(t, srv, http.MethodGet, "/")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "test-session") || !strings.Contains(body, "8.000") {
		t.Fatalf("index missing session data")
	}
	if w := do(t, srv, http.MethodGet, "/nope"); w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown path, got %v", w.Code)
	}
}

func TestHandleSummary(t *testing.T) {
	srv, s := newTestServer(t)
	if _, err := s.Manual(context.Background(), 12, 12.97, 77.59); err != nil {
		t.Fatalf("Manual: %v", err)
	}
	if err := s.Step(context.Background(), 2); err != nil {
		t.Fatalf("Step: %v", err)
	}
	w := do(t, srv, http.MethodGet, "/summary")
	var got summaryResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Total != 3 || got.Overloads != 3 || got.Threshold != 10 || got.SessionID != "test-session" {
		t.Fatalf("unexpected summary %+v", got)
	}
	if got.Latest == nil || got.Latest.Weight != 12 {
		t.Fatalf("unexpected latest %+v", got.Latest)
	}
	if w := do(t, srv, http.MethodPost, "/summary"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %v", w.Code)
	}
}

func TestHandleReadingsAndMap(t *testing.T) {
	srv, s := newTestServer(t)
	if err := s.Step(context.Background(), 40); err != nil {
		t.Fatalf("Step: %v", err)
	}
	cases := []struct {
		target string
		code   int
		n      int
	}{
		{"/readings", http.StatusOK, 40},
		{"/readings?tail=5", http.StatusOK, 5},
		{"/readings?tail=x", http.StatusBadRequest, 0},
		{"/readings?tail=-1", http.StatusBadRequest, 0},
		{"/map", http.StatusOK, 30},
		{"/map?window=3", http.StatusOK, 3},
		{"/map?window=0", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		w := do(t, srv, http.MethodGet, tc.target)
		if w.Code != tc.code {
			t.Fatalf("%s: status %d, want %d", tc.target, w.Code, tc.code)
		}
		if tc.code != http.StatusOK {
			continue
		}
		var rs []telemetry.Reading
		if err := json.NewDecoder(w.Body).Decode(&rs); err != nil {
			t.Fatalf("%s: decode: %v", tc.target, err)
		}
		if len(rs) != tc.n {
			t.Fatalf("%s: got %d readings, want %d", tc.target, len(rs), tc.n)
		}
	}
}

func TestHandleThreshold(t *testing.T) {
	srv, s := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/threshold?value=7.5")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body)
	}
	if s.Threshold() != 7.5 {
		t.Fatalf("threshold not applied: %v", s.Threshold())
	}
	for _, bad := range []string{"/threshold?value=abc", "/threshold?value=0", "/threshold?value=-2"} {
		if w := do(t, srv, http.MethodPost, bad); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: Expected 400, got %v", bad, w.Code)
		}
	}
	if s.Threshold() != 7.5 {
		t.Fatalf("rejected values changed threshold")
	}
	if w := do(t, srv, http.MethodGet, "/threshold?value=3"); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %v", w.Code)
	}
}

func TestHandleResetAndManual(t *testing.T) {
	srv, s := newTestServer(t)
	if err := s.Step(context.Background(), 3); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if w := do(t, srv, http.MethodPost, "/reset"); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %v", w.Code)
	}
	if s.Log().Len() != 0 {
		t.Fatalf("log not cleared")
	}

	w := do(t, srv, http.MethodPost, "/manual?weight=11.5&lat=12.5&lon=77.5")
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %v: %s", w.Code, w.Body)
	}
	var r telemetry.Reading
	if err := json.NewDecoder(w.Body).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !r.Alert || r.Weight != 11.5 || s.Log().Len() != 1 {
		t.Fatalf("manual reading not recorded: %+v", r)
	}
	for _, bad := range []string{"/manual?weight=1&lat=2", "/manual?weight=99&lat=0&lon=0", "/manual?weight=1&lat=91&lon=0"} {
		if w := do(t, srv, http.MethodPost, bad); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: Expected 400, got %v", bad, w.Code)
		}
	}
	if s.Log().Len() != 1 {
		t.Fatalf("rejected manual readings were logged")
	}
}

func TestHandleExports(t *testing.T) {
	srv, s := newTestServer(t)
	if w := do(t, srv, http.MethodGet, "/chart.png"); w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for empty chart, got %v", w.Code)
	}
	if err := s.Step(context.Background(), 5); err != nil {
		t.Fatalf("Step: %v", err)
	}

	w := do(t, srv, http.MethodGet, "/export.csv")
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Disposition"), "KA01AB1234_log.csv") {
		t.Fatalf("unexpected csv response %v %v", w.Code, w.Header())
	}
	rs, err := export.ReadCSV(w.Body)
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rs) != 5 {
		t.Fatalf("expected 5 csv rows, got %d", len(rs))
	}

	w = do(t, srv, http.MethodGet, "/chart.png")
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected chart response %v", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("chart is not a PNG")
	}
}

func TestWebSocketStream(t *testing.T) {
	srv, s := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// give the handler time to subscribe before appending
	time.Sleep(50 * time.Millisecond)
	ctx := context.Background()
	if _, err := s.Manual(ctx, 11, 12.9, 77.5); err != nil {
		t.Fatalf("Manual: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "reading" || msg.Reading == nil || msg.Reading.Weight != 11 || !msg.Reading.Alert {
		t.Fatalf("unexpected frame %+v", msg)
	}

	s.Reset()
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "reset" {
		t.Fatalf("expected reset frame, got %+v", msg)
	}
}
