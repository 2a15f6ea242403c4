package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/tphakala/trackid-go/internal/events"
	"github.com/tphakala/trackid-go/internal/logger"
)

const (
	defaultClientBuffer = 64
	sseWriteDeadline    = 10 * time.Second
)

// Hub is an event bus consumer fanning events out to connected
// server-sent event clients. Slow clients lose events rather than
// blocking the bus.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan events.Event
	closed  bool
	buffer  int
	dropped atomic.Uint64
	log     logger.Logger
}

// NewHub creates a hub. buffer is the per-client queue length.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Hub{
		clients: make(map[string]chan events.Event),
		buffer:  buffer,
		log:     GetLogger(),
	}
}

func (h *Hub) Name() string { return "sse" }

// ProcessEvent implements events.Consumer.
func (h *Hub) ProcessEvent(e events.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.clients {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
			h.log.Debug("sse client queue full, event dropped",
				logger.String("client_id", id),
				logger.String("kind", string(e.Kind)))
		}
	}
	return nil
}

// Subscribe registers a client. The channel is closed by unsubscribe or
// Close.
func (h *Hub) Subscribe() (id string, ch <-chan events.Event, unsubscribe func()) {
	id = uuid.NewString()
	c := make(chan events.Event, h.buffer)

	h.mu.Lock()
	if h.closed {
		close(c)
	} else {
		h.clients[id] = c
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Info("SSE client connected", logger.String("client_id", id), logger.Int("clients", n))
	return id, c, func() { h.remove(id) }
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(c)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.log.Info("SSE client disconnected", logger.String("client_id", id), logger.Int("clients", n))
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns the number of events dropped for slow clients.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Close disconnects every client. Later subscriptions get a closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, c := range h.clients {
		close(c)
		delete(h.clients, id)
	}
}

// streamEvents sends a "connected" event with the current snapshot and then
// every bus event, named by its kind, until the client goes away.
func (s *Server) streamEvents(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	id, ch, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	if err := s.writeEvent(c, "connected", map[string]any{
		"clientId": id,
		"snapshot": s.pipeline.Snapshot(),
	}); err != nil {
		return nil
	}

	ticker := time.NewTicker(s.config.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := s.writeEvent(c, string(e.Kind), e); err != nil {
				s.log.Debug("SSE write failed", logger.String("client_id", id), logger.Error(err))
				return nil
			}
		case <-ticker.C:
			if err := s.writeEvent(c, "heartbeat", map[string]any{
				"timestamp": time.Now().Unix(),
				"clients":   s.hub.Clients(),
			}); err != nil {
				return nil
			}
		case <-c.Request().Context().Done():
			return nil
		}
	}
}

func (s *Server) writeEvent(c echo.Context, name string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal SSE data: %w", err)
	}

	rc := http.NewResponseController(c.Response().Writer)
	_ = rc.SetWriteDeadline(time.Now().Add(sseWriteDeadline))

	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", name, payload); err != nil {
		return fmt.Errorf("write SSE message: %w", err)
	}
	c.Response().Flush()
	return nil
}
