package api

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/charujain10/smartchair-dispatch/core/events"
	"github.com/charujain10/smartchair-dispatch/infra/logger"
	"github.com/charujain10/smartchair-dispatch/internal/eventbus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// StreamHub fans ride events out to websocket subscribers. One subscriber
// follows one ride; slow subscribers are dropped rather than buffered.
type StreamHub struct {
	bus *eventbus.Bus[events.Event]
	log logger.Logger

	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

type streamClient struct {
	conn   *websocket.Conn
	rideID string
	mu     sync.Mutex
}

func (c *streamClient) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// NewStreamHub creates a hub draining the given bus.
func NewStreamHub(bus *eventbus.Bus[events.Event], log logger.Logger) *StreamHub {
	return &StreamHub{bus: bus, log: log, clients: make(map[*streamClient]struct{})}
}

// Run forwards bus events to subscribers until the context is cancelled.
func (h *StreamHub) Run(ctx context.Context) {
	sub := h.bus.Subscribe()
	defer h.bus.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-sub:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(ev)
		}
	}
}

type streamFrame struct {
	Kind    string       `json:"kind"`
	Payload events.Event `json:"payload"`
}

func (h *StreamHub) broadcast(ev events.Event) {
	rideID := rideIDOf(ev)
	if rideID == "" {
		return
	}
	frame := streamFrame{Kind: ev.Kind(), Payload: ev}
	h.mu.Lock()
	targets := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		if c.rideID == rideID {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()
	for _, c := range targets {
		if err := c.send(frame); err != nil {
			h.log.Debugf("dropping stream subscriber for ride %s: %v", rideID, err)
			h.remove(c)
		}
	}
}

func rideIDOf(ev events.Event) string {
	switch e := ev.(type) {
	case events.RideStatusChanged:
		return e.RideID
	case events.EmergencyRaised:
		return e.RideID
	default:
		return ""
	}
}

func (h *StreamHub) add(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *StreamHub) remove(c *streamClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		_ = c.conn.Close()
	}
	h.mu.Unlock()
}

func (h *StreamHub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		_ = c.conn.Close()
	}
	h.clients = make(map[*streamClient]struct{})
	h.mu.Unlock()
}

// handleRideEvents upgrades the connection and streams the ride's lifecycle
// and emergency events until the client disconnects.
func (s *Server) handleRideEvents(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		http.Error(w, "streaming disabled", http.StatusNotImplemented)
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := s.rides.Get(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	c := &streamClient{conn: conn, rideID: id}
	s.stream.add(c)
	go func() {
		// the read loop only exists to observe the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.stream.remove(c)
				return
			}
		}
	}()
}
