// Package feed broadcasts the events a host hands it (book depth, fills,
// outs) to connected subscribers over a structured, JSON-framed websocket
// connection: an upgrader, a client registry, and a broadcast fan-out loop.
package feed

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is one JSON-framed notification pushed to every subscriber. Kind
// is "fill", "out", or "depth"; exactly the matching field is populated.
type Event struct {
	Kind  string      `json:"kind"`
	Fill  interface{} `json:"fill,omitempty"`
	Out   interface{} `json:"out,omitempty"`
	Depth interface{} `json:"depth,omitempty"`
}

// Hub fans out Events to every currently connected client.
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	clients  map[*websocket.Conn]chan Event
}

// NewHub constructs an empty Hub ready to accept connections.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]chan Event),
	}
}

// ServeHTTP upgrades an incoming request to a websocket connection and
// registers it as a subscriber until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	out := make(chan Event, 256)
	h.mu.Lock()
	h.clients[conn] = out
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for ev := range out {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

// Broadcast pushes ev to every connected subscriber. A subscriber whose
// outbound buffer is full is dropped rather than allowed to stall the
// host's instruction path — market data is best-effort, unlike the event
// queue itself.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for conn, out := range h.clients {
		select {
		case out <- ev:
		default:
			delete(h.clients, conn)
			close(out)
		}
	}
}

// FillJSON is the wire shape of an eventqueue.Fill for subscribers.
type FillJSON struct {
	TakerSide uint8  `json:"taker_side"`
	QuoteSize uint64 `json:"quote_size"`
	BaseSize  uint64 `json:"base_size"`
}

// OutJSON is the wire shape of an eventqueue.Out for subscribers.
type OutJSON struct {
	Side     uint8  `json:"side"`
	BaseSize uint64 `json:"base_size"`
	Delete   bool   `json:"delete"`
}

// DepthLevel is one price/size pair in a depth snapshot.
type DepthLevel struct {
	Price uint64 `json:"price"`
	Size  uint64 `json:"size"`
}

// DepthJSON is a top-of-book snapshot sent after any instruction that
// could move the inside market.
type DepthJSON struct {
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}

// MarshalDepth is a small helper so cmd/clobd doesn't need to import
// encoding/json itself just to log a snapshot it also broadcasts.
func MarshalDepth(d DepthJSON) ([]byte, error) { return json.Marshal(d) }
