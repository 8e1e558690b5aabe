// Package live serves the realtime chat socket and tracks open sockets per
// learner tab.
package live

import (
	"log/slog"
	"sync"

	"github.com/ashureev/escape-labs/internal/metrics"
	"github.com/coder/websocket"
)

// Registry tracks the active chat socket of each user tab. A tab holds at
// most one socket; registering a new one closes the old.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Get returns the active connection for a user and session.
func (r *Registry) Get(userID, sessionID string) *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sessions, ok := r.active[userID]; ok {
		return sessions[sessionID]
	}
	return nil
}

// Count returns the number of registered sockets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, sessions := range r.active {
		n += len(sessions)
	}
	return n
}

// Register adds a socket for a user/session.
func (r *Registry) Register(userID, sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[userID]; !exists {
		r.active[userID] = make(map[string]*websocket.Conn)
	}

	existing, replaced := r.active[userID][sessionID]
	if replaced && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
	}

	r.active[userID][sessionID] = conn
	if !replaced {
		metrics.ActiveSockets.Inc()
	}
	slog.Info("Chat socket registered", "user_id", userID, "session_id", sessionID)
}

// Unregister removes a socket if it is still the registered one.
func (r *Registry) Unregister(userID, sessionID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sessions, ok := r.active[userID]; ok {
		if current, exists := sessions[sessionID]; exists && current == conn {
			r.remove(userID, sessionID)
			slog.Info("Chat socket unregistered", "user_id", userID, "session_id", sessionID)
		}
	}
}

// Close terminates the socket of one user tab.
func (r *Registry) Close(userID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.active[userID][sessionID]
	if !ok {
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "session expired")
	r.remove(userID, sessionID)
	slog.Info("Chat socket closed", "user_id", userID, "session_id", sessionID)
}

// CloseUser terminates every socket of a user.
func (r *Registry) CloseUser(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sid, conn := range r.active[userID] {
		_ = conn.Close(websocket.StatusNormalClosure, "session closed")
		metrics.ActiveSockets.Dec()
		slog.Info("Chat socket closed", "user_id", userID, "session_id", sid)
	}
	delete(r.active, userID)
}

// remove drops an entry. Caller holds r.mu.
func (r *Registry) remove(userID, sessionID string) {
	sessions := r.active[userID]
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(r.active, userID)
	}
	metrics.ActiveSockets.Dec()
}
