// Package realtime pushes chat and notification events to connected browsers
// over a websocket.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// Event types
const (
	EventMessage      = "message"
	EventNotification = "notification"
	EventChatRead     = "chat_read"
)

const writeTimeout = 10 * time.Second

// Event is the frame written to clients
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Publisher delivers events to the connections of a user
type Publisher interface {
	Publish(userID uint, event Event)
}

type peer struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	encoder *json.Encoder
}

func (p *peer) write(event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return p.encoder.Encode(event)
}

// Hub keeps the open connections of every user. A user may hold several
// (one per tab or device).
type Hub struct {
	mu             sync.RWMutex
	peers          map[uint]map[*peer]struct{}
	allowedOrigins []string
}

// NewHub creates a hub. Handshakes from origins outside allowedOrigins are
// rejected; an empty list accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		peers:          make(map[uint]map[*peer]struct{}),
		allowedOrigins: allowedOrigins,
	}
}

func (h *Hub) join(userID uint, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.peers[userID]
	if !ok {
		set = make(map[*peer]struct{})
		h.peers[userID] = set
	}
	set[p] = struct{}{}
}

func (h *Hub) leave(userID uint, p *peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.peers[userID]
	delete(set, p)
	if len(set) == 0 {
		delete(h.peers, userID)
	}
}

// Online reports whether userID has at least one open connection
func (h *Hub) Online(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers[userID]) > 0
}

// Publish implements Publisher. Failed writes close the connection; the read
// loop then removes the peer.
func (h *Hub) Publish(userID uint, event Event) {
	h.mu.RLock()
	targets := make([]*peer, 0, len(h.peers[userID]))
	for p := range h.peers[userID] {
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.write(event); err != nil {
			slog.Debug("Dropping websocket peer", "user_id", userID, "error", err)
			_ = p.conn.Close()
		}
	}
}

// Handler upgrades authenticated requests. userFrom resolves the signed-in
// user of the request; requests without one get 401 before the upgrade.
func (h *Hub) Handler(userFrom func(*http.Request) (uint, bool)) http.Handler {
	server := websocket.Server{
		Handshake: h.handshake,
		Handler: func(conn *websocket.Conn) {
			userID, _ := userFrom(conn.Request())
			h.serve(userID, conn)
		},
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := userFrom(r); !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		server.ServeHTTP(w, r)
	})
}

func (h *Hub) handshake(config *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(config, r)
	if err != nil {
		return err
	}
	config.Origin = origin
	if len(h.allowedOrigins) == 0 || slices.Contains(h.allowedOrigins, "*") {
		return nil
	}
	if origin == nil || !slices.Contains(h.allowedOrigins, origin.Scheme+"://"+origin.Host) {
		return fmt.Errorf("origin not allowed: %v", origin)
	}
	return nil
}

// serve registers the connection and blocks until the client goes away.
// Clients only listen; anything they send is discarded.
func (h *Hub) serve(userID uint, conn *websocket.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	p := &peer{conn: conn, encoder: json.NewEncoder(conn)}
	h.join(userID, p)
	defer h.leave(userID, p)
	slog.Debug("Websocket connected", "user_id", userID)

	var discard json.RawMessage
	decoder := json.NewDecoder(conn)
	for {
		if err := decoder.Decode(&discard); err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("Websocket closed", "user_id", userID, "error", err)
			}
			return
		}
	}
}
