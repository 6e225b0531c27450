package main

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrNotConnected is returned by SendToUser when the target user has no
// live connections.
var ErrNotConnected = errors.New("user not connected")

// Sender is the minimal interface the hub needs from a connection: the
// ability to push an encoded payload towards the client.
type Sender interface {
	Send(payload []byte) error
}

// ConnectionHub is the connection registry: it maps user ids to the set of
// currently live connections for that user, supporting multiple devices
// per user. It is the single source of truth for "is this user reachable
// right now".
type ConnectionHub struct {
	mu    sync.RWMutex
	conns map[string]map[string]Sender
}

// NewConnectionHub creates a new hub instance.
func NewConnectionHub() *ConnectionHub {
	return &ConnectionHub{conns: make(map[string]map[string]Sender)}
}

// Register adds a connection for the given user under connID. It reports
// whether this is the user's first live connection, i.e. whether the user
// just transitioned from offline to online.
func (h *ConnectionHub) Register(userID, connID string, s Sender) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[userID]
	if !ok {
		set = make(map[string]Sender)
		h.conns[userID] = set
	}
	set[connID] = s
	return !ok
}

// Unregister removes a connection. It is idempotent: removing a connection
// that is already gone is a no-op. It reports whether this call removed the
// user's last connection, i.e. whether the user just went offline.
func (h *ConnectionHub) Unregister(userID, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(h.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user has at least one live connection. The
// answer is a point-in-time snapshot; callers must tolerate staleness.
func (h *ConnectionHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID]) > 0
}

// OnlineAmong returns the subset of ids that currently have at least one
// live connection, in the order given.
func (h *ConnectionHub) OnlineAmong(ids []string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	online := make([]string, 0, len(ids))
	for _, id := range ids {
		if len(h.conns[id]) > 0 {
			online = append(online, id)
		}
	}
	return online
}

// SendToUser delivers payload to every live connection for the user. A
// connection that fails to accept the payload does not abort delivery to
// the user's other connections; it is force-closed instead, which drives
// its lifecycle through the normal disconnect path (unregister plus
// offline announcement if it was the last one). Returns ErrNotConnected
// if the user has no connections at all.
func (h *ConnectionHub) SendToUser(userID string, payload []byte) error {
	// Copy the connection set under the read lock so delivery is safe
	// against concurrent register/unregister for the same user.
	h.mu.RLock()
	set := h.conns[userID]
	targets := make([]Sender, 0, len(set))
	for _, s := range set {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrNotConnected, userID)
	}

	var firstErr error
	for _, s := range targets {
		if err := s.Send(payload); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			if c, ok := s.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}
	return firstErr
}
