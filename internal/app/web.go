package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/relabs-tech/metal_detector/internal/config"
	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/log"
	"github.com/relabs-tech/metal_detector/internal/scanner"
)

const (
	maxFinds       = 50
	wsSendBuffer   = 16
	wsWriteTimeout = 2 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Web keeps the latest detection state received from the broker and serves
// it over HTTP and websocket.
type Web struct {
	log     *slog.Logger
	control func(ControlMessage) error

	mu          sync.RWMutex
	last        detector.Reading
	haveReading bool
	finds       []scanner.Find // newest first

	clientsMu sync.Mutex
	clients   map[chan []byte]struct{}
}

// NewWeb creates the web state. control may be nil, in which case
// POST /api/control is rejected.
func NewWeb(control func(ControlMessage) error, logger *slog.Logger) *Web {
	if logger == nil {
		logger = slog.Default()
	}
	return &Web{
		log:     logger,
		control: control,
		clients: make(map[chan []byte]struct{}),
	}
}

// OnReading stores r and pushes it to every websocket client.
func (w *Web) OnReading(r detector.Reading) {
	w.mu.Lock()
	w.last = r
	w.haveReading = true
	w.mu.Unlock()

	payload, err := json.Marshal(r)
	if err != nil {
		return
	}
	w.broadcast(payload)
}

// OnFind records f at the head of the find log.
func (w *Web) OnFind(f scanner.Find) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finds = append([]scanner.Find{f}, w.finds...)
	if len(w.finds) > maxFinds {
		w.finds = w.finds[:maxFinds]
	}
}

func (w *Web) broadcast(payload []byte) {
	w.clientsMu.Lock()
	defer w.clientsMu.Unlock()
	for ch := range w.clients {
		select {
		case ch <- payload:
		default:
			// slow client, drop this frame
		}
	}
}

// Handler returns the HTTP routes. Static files are served from staticDir.
func (w *Web) Handler(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/detection", w.handleDetection)
	mux.HandleFunc("/api/finds", w.handleFinds)
	mux.HandleFunc("/api/control", w.handleControl)
	mux.HandleFunc("/ws", w.handleWS)
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

func (w *Web) handleDetection(rw http.ResponseWriter, r *http.Request) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if !w.haveReading {
		http.Error(rw, "no data yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(rw, w.last, w.log)
}

func (w *Web) handleFinds(rw http.ResponseWriter, r *http.Request) {
	w.mu.RLock()
	finds := make([]scanner.Find, len(w.finds))
	copy(finds, w.finds)
	w.mu.RUnlock()

	writeJSON(rw, finds, w.log)
}

func (w *Web) handleControl(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if w.control == nil {
		http.Error(rw, "control not available", http.StatusServiceUnavailable)
		return
	}

	var msg ControlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(rw, fmt.Sprintf("invalid control message: %v", err), http.StatusBadRequest)
		return
	}
	if msg.Action != "" && msg.Action != "start" && msg.Action != "stop" {
		http.Error(rw, fmt.Sprintf("unknown action %q", msg.Action), http.StatusBadRequest)
		return
	}
	if err := w.control(msg); err != nil {
		code := http.StatusBadGateway
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			code = http.StatusServiceUnavailable
		}
		http.Error(rw, err.Error(), code)
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

func (w *Web) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(rw, r, nil)
	if err != nil {
		w.log.Warn("websocket upgrade error", "err", err)
		return
	}
	defer conn.Close()

	ch := make(chan []byte, wsSendBuffer)
	w.clientsMu.Lock()
	w.clients[ch] = struct{}{}
	w.clientsMu.Unlock()
	defer func() {
		w.clientsMu.Lock()
		delete(w.clients, ch)
		w.clientsMu.Unlock()
	}()

	// Send the current state right away.
	w.mu.RLock()
	last, have := w.last, w.haveReading
	w.mu.RUnlock()
	if have {
		if err := conn.WriteJSON(last); err != nil {
			return
		}
	}

	// The reader only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					w.log.Warn("websocket error", "err", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case payload := <-ch:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}

func writeJSON(rw http.ResponseWriter, v any, logger *slog.Logger) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(v); err != nil {
		logger.Warn("json encode error", "err", err)
	}
}

// RunWeb subscribes to the detection and find topics and serves the web view.
func RunWeb(cfg *config.Config) error {
	logger := log.With("component", "web")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	cb := newControlBreaker(logger)
	w := NewWeb(guardControl(cb, func(msg ControlMessage) error {
		return publishControl(client, cfg.TopicControl, msg)
	}), logger)

	if err := subscribeJSON(client, cfg.TopicDetection, logger, w.OnReading); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicFinds, logger, w.OnFind); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	logger.Info("web server listening", "addr", addr)
	return http.ListenAndServe(addr, w.Handler("web"))
}

func publishControl(client mqtt.Client, topic string, msg ControlMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(2 * time.Second) {
		return fmt.Errorf("publish %s: timed out", topic)
	}
	return token.Error()
}

// newControlBreaker opens after three failed control publishes in a row and
// probes the broker again after five seconds.
func newControlBreaker(logger *slog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "control-publish",
		Timeout: 5 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// guardControl runs every control forward through cb.
func guardControl(cb *gobreaker.CircuitBreaker, fn func(ControlMessage) error) func(ControlMessage) error {
	return func(msg ControlMessage) error {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, fn(msg)
		})
		return err
	}
}
