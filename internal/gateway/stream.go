package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/toolgate/toolgate/internal/confirm"
)

const (
	// clientBuffer is the per-client event queue. Clients that fall this
	// far behind are disconnected rather than allowed to block the hub.
	clientBuffer = 16

	writeTimeout = 10 * time.Second
)

// Event is one message on the pending-confirmations stream.
type Event struct {
	// Type is "requested" or "settled".
	Type    string          `json:"type"`
	Pending confirm.Pending `json:"pending"`
	Result  confirm.Result  `json:"result,omitempty"`
}

// Stream broadcasts coordinator events to connected WebSocket clients.
// It implements confirm.Observer.
type Stream struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
	logger  *slog.Logger
}

// NewStream creates an empty broadcast hub.
func NewStream(logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{
		clients: make(map[chan Event]struct{}),
		logger:  logger,
	}
}

// ConfirmationRequested implements confirm.Observer.
func (s *Stream) ConfirmationRequested(p confirm.Pending) {
	s.broadcast(Event{Type: "requested", Pending: p})
}

// ConfirmationSettled implements confirm.Observer.
func (s *Stream) ConfirmationSettled(p confirm.Pending, result confirm.Result) {
	s.broadcast(Event{Type: "settled", Pending: p, Result: result})
}

func (s *Stream) broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		select {
		case ch <- ev:
		default:
			// Slow client: drop it instead of blocking settlement paths.
			delete(s.clients, ch)
			close(ch)
		}
	}
}

// ClientCount returns the number of connected stream clients.
func (s *Stream) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// CloseAll disconnects every client. Called on gateway shutdown.
func (s *Stream) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.clients {
		delete(s.clients, ch)
		close(ch)
	}
}

// ServeHTTP upgrades the connection and relays events until the client
// disconnects or the hub closes the queue.
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ch := make(chan Event, clientBuffer)
	s.mu.Lock()
	s.clients[ch] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if _, ok := s.clients[ch]; ok {
			delete(s.clients, ch)
			close(ch)
		}
		s.mu.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "stream closed")
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("marshal stream event", "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err = conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
