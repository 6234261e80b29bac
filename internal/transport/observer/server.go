// Package observer streams live point updates to map clients over a
// websocket. The hub is the engine's event sink: after an action or tick
// commits, the changed point is re-read and fanned out to every subscriber.
package observer

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"turfpoint.gg/internal/game"
	"turfpoint.gg/internal/store"
)

const Version = 1

type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocolVersion"`
}

type WelcomeMsg struct {
	Type            string     `json:"type"` // "WELCOME"
	ProtocolVersion int        `json:"protocolVersion"`
	Tick            uint64     `json:"tick"`
	Points          []PointMsg `json:"points"`
}

type PointUpdateMsg struct {
	Type  string   `json:"type"` // "POINT"
	Point PointMsg `json:"point"`
}

type PointMsg struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Health     int    `json:"health"`
	MaxHealth  int    `json:"maxHealth"`
	Level      int    `json:"level"`
	AcquiredBy string `json:"acquiredBy,omitempty"`
}

func pointMsg(p game.Point) PointMsg {
	return PointMsg{
		ID:         p.ID,
		Name:       p.Name,
		Health:     p.Health,
		MaxHealth:  p.MaxHealth,
		Level:      p.Level,
		AcquiredBy: p.AcquiredBy,
	}
}

// Hub fans point-change events out to websocket subscribers. PointChanged
// never blocks the caller; events queue into a bounded channel drained by
// Run, and slow subscribers drop frames rather than stall the hub.
type Hub struct {
	store *store.Store
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu   sync.Mutex
	subs map[uint64]chan []byte

	events chan string
}

func NewHub(st *store.Store, logger *log.Logger) *Hub {
	return &Hub{
		store: st,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs:   make(map[uint64]chan []byte),
		events: make(chan string, 256),
	}
}

// PointChanged implements the engine and tick event sinks.
func (h *Hub) PointChanged(pointID string) {
	select {
	case h.events <- pointID:
	default:
		h.log.Printf("[observer] event queue full, dropping update for %s", pointID)
	}
}

// Run drains the event queue until ctx is done. Each event re-reads the
// point so subscribers always see committed state.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pointID := <-h.events:
			var p game.Point
			err := h.store.Tx(ctx, func(tx *store.Tx) error {
				var err error
				p, err = tx.Point(pointID)
				return err
			})
			if err != nil {
				h.log.Printf("[observer] load point %s: %v", pointID, err)
				continue
			}
			b, err := json.Marshal(PointUpdateMsg{Type: "POINT", Point: pointMsg(p)})
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

func (h *Hub) broadcast(b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- b:
		default:
			h.log.Printf("[observer] subscriber %d lagging, dropping frame", id)
		}
	}
}

func (h *Hub) subscribe() (uint64, chan []byte) {
	id := h.nextID.Add(1)
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()
	return id, ch
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// Handler upgrades the connection and serves updates. Clients authenticate
// with their bearer token in the "token" query parameter since browsers
// cannot set headers on a websocket handshake.
func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(rw, "missing token", http.StatusForbidden)
			return
		}
		if _, err := h.store.UserByToken(r.Context(), token); err != nil {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad subscribe"), time.Now().Add(time.Second))
			return
		}
		if sub.Type != "SUBSCRIBE" || sub.ProtocolVersion != Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		welcome, err := h.welcome(r.Context())
		if err != nil {
			h.log.Printf("[observer] welcome: %v", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
			return
		}

		id, ch := h.subscribe()
		defer h.unsubscribe(id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-ch:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: nothing but pings and repeat SUBSCRIBEs expected.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (h *Hub) welcome(ctx context.Context) ([]byte, error) {
	g, err := h.store.Game(ctx)
	if err != nil {
		return nil, err
	}
	points, err := h.store.Points(ctx)
	if err != nil {
		return nil, err
	}
	msgs := make([]PointMsg, 0, len(points))
	for _, p := range points {
		msgs = append(msgs, pointMsg(p))
	}
	return json.Marshal(WelcomeMsg{
		Type:            "WELCOME",
		ProtocolVersion: Version,
		Tick:            g.Tick,
		Points:          msgs,
	})
}
