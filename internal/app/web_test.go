package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/log"
	"github.com/relabs-tech/metal_detector/internal/scanner"
)

func TestWeb_Detection(t *testing.T) {
	w := NewWeb(nil, log.Discard())
	h := w.Handler(t.TempDir())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/detection", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503 before any reading, got %d", rec.Code)
	}

	w.OnReading(detector.Reading{Mode: detector.StudFinder, Level: 42, Detected: true})

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/detection", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got detector.Reading
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != detector.StudFinder || got.Level != 42 || !got.Detected {
		t.Errorf("Unexpected reading %+v", got)
	}
}

func TestWeb_FindsNewestFirst(t *testing.T) {
	w := NewWeb(nil, log.Discard())
	for i := 0; i < maxFinds+5; i++ {
		w.OnFind(scanner.Find{Level: float64(i)})
	}

	rec := httptest.NewRecorder()
	w.Handler(t.TempDir()).ServeHTTP(rec, httptest.NewRequest("GET", "/api/finds", nil))

	var finds []scanner.Find
	if err := json.NewDecoder(rec.Body).Decode(&finds); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(finds) != maxFinds {
		t.Fatalf("Expected %d finds, got %d", maxFinds, len(finds))
	}
	if finds[0].Level != float64(maxFinds+4) {
		t.Errorf("Expected newest find first, got level %v", finds[0].Level)
	}
}

func TestWeb_Control(t *testing.T) {
	var got ControlMessage
	w := NewWeb(func(msg ControlMessage) error { got = msg; return nil }, log.Discard())
	h := w.Handler(t.TempDir())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/control", strings.NewReader(`{"mode":"handheld","action":"start"}`)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Mode == nil || *got.Mode != detector.HandheldScanner || got.Action != "start" {
		t.Errorf("Unexpected forwarded message %+v", got)
	}

	for _, body := range []string{`{"action":"reboot"}`, `{"mode":"compass"}`, `nope`} {
		rec = httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/control", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, got %d", body, rec.Code)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/control", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", rec.Code)
	}
}

func TestWeb_ControlBreakerOpens(t *testing.T) {
	calls := 0
	forward := guardControl(newControlBreaker(log.Discard()), func(ControlMessage) error {
		calls++
		return errors.New("broker down")
	})
	h := NewWeb(forward, log.Discard()).Handler(t.TempDir())

	post := func() int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/control", strings.NewReader(`{"action":"stop"}`)))
		return rec.Code
	}

	for i := 0; i < 3; i++ {
		if code := post(); code != http.StatusBadGateway {
			t.Fatalf("Expected 502 while the breaker is closed, got %d", code)
		}
	}
	if code := post(); code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 once the breaker is open, got %d", code)
	}
	if calls != 3 {
		t.Errorf("Expected the open breaker to skip the publish, got %d calls", calls)
	}
}

func TestWeb_Static(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>detector</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	w := NewWeb(nil, log.Discard())

	rec := httptest.NewRecorder()
	w.Handler(dir).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if !strings.Contains(rec.Body.String(), "detector") {
		t.Errorf("Expected index page, got %q", rec.Body.String())
	}
}

func TestWeb_WebsocketStream(t *testing.T) {
	w := NewWeb(nil, log.Discard())
	w.OnReading(detector.Reading{Level: 1})

	srv := httptest.NewServer(w.Handler(t.TempDir()))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first detector.Reading
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if first.Level != 1 {
		t.Errorf("Expected initial level 1, got %v", first.Level)
	}

	// The handler registers the client before sending the initial state,
	// so this broadcast cannot be missed.
	w.OnReading(detector.Reading{Level: 77, Detected: true})

	var next detector.Reading
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read broadcast: %v", err)
	}
	if next.Level != 77 || !next.Detected {
		t.Errorf("Unexpected broadcast %+v", next)
	}
}
