// Package realtime pushes refresh hints to dashboards over websockets.
package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message is the JSON frame sent to subscribers.
type Message struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	TeamID  uint   `json:"team_id"`
	Reason  string `json:"reason,omitempty"`
}

// Hub tracks websocket subscribers per team.
type Hub struct {
	clients  map[uint]map[*websocket.Conn]bool
	mu       sync.RWMutex
	writeMu  sync.Mutex // one writer per connection at a time
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub builds a hub accepting upgrades from the given origins.
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}

	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &Hub{
		clients: make(map[uint]map[*websocket.Conn]bool),
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return allowed[r.Header.Get("Origin")]
			},
		},
	}
}

// Subscribers returns the number of open connections for a team.
func (h *Hub) Subscribers(teamID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[teamID])
}

// BroadcastRefresh tells every subscriber of the team to reload its data.
func (h *Hub) BroadcastRefresh(teamID uint, reason string) {
	h.mu.RLock()
	clients, exists := h.clients[teamID]
	if !exists || len(clients) == 0 {
		h.mu.RUnlock()
		return
	}

	// Copy so the lock is not held while writing
	conns := make([]*websocket.Conn, 0, len(clients))
	for conn := range clients {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	msg := Message{Type: "refresh", Message: "Team data updated", TeamID: teamID, Reason: reason}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	for _, conn := range conns {
		if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			h.log.Warn("failed to set write deadline for broadcast", zap.Uint("team_id", teamID), zap.Error(err))
			continue
		}

		if err := conn.WriteJSON(msg); err != nil {
			h.log.Warn("failed to broadcast refresh", zap.Uint("team_id", teamID), zap.Error(err))
			h.remove(teamID, conn)
			conn.Close()
		}
	}
}

// Serve upgrades the request and blocks until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, teamID uint) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.log.Warn("failed to set initial read deadline", zap.Error(err))
		conn.Close()
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	defer func() {
		h.remove(teamID, conn)
		conn.Close()
		h.log.Debug("websocket connection closed", zap.Uint("team_id", teamID))
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}

	err = conn.WriteJSON(Message{
		Type:    "connected",
		Message: "WebSocket connection established",
		TeamID:  teamID,
	})
	if err != nil {
		h.log.Warn("failed to send welcome message", zap.Error(err))
		return
	}

	// Registered only after the welcome frame so broadcasts never race it
	h.add(teamID, conn)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					h.log.Debug("ping failed", zap.Uint("team_id", teamID), zap.Error(err))
					return
				}
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket error", zap.Uint("team_id", teamID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) add(teamID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[teamID] == nil {
		h.clients[teamID] = make(map[*websocket.Conn]bool)
	}
	h.clients[teamID][conn] = true
}

func (h *Hub) remove(teamID uint, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, exists := h.clients[teamID]; exists {
		delete(clients, conn)
		if len(clients) == 0 {
			delete(h.clients, teamID)
		}
	}
}
