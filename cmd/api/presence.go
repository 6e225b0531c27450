package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
)

// Presence status values carried by status events.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// statusEvent tells a friend that a user's presence changed.
type statusEvent struct {
	Type   string `json:"type"`
	User   string `json:"user"`
	Status string `json:"status"`
}

// initialStatus is the one-shot snapshot a newly connected client receives
// so it can render presence without waiting for individual events.
type initialStatus struct {
	Type        string   `json:"type"`
	OnlineUsers []string `json:"online_users"`
}

// FriendLister answers "who are this user's accepted friends". Backed by
// the friendships store in production; faked in tests.
type FriendLister interface {
	FriendIDs(ctx context.Context, userID string) ([]string, error)
}

// PresenceBroadcaster pushes online/offline events to the friends of the
// affected user that are themselves currently connected. Presence is "now"
// information: friends who are offline are skipped, never queued.
type PresenceBroadcaster struct {
	hub     *ConnectionHub
	friends FriendLister
}

// NewPresenceBroadcaster returns a broadcaster over the given hub and
// friend graph.
func NewPresenceBroadcaster(hub *ConnectionHub, friends FriendLister) *PresenceBroadcaster {
	return &PresenceBroadcaster{hub: hub, friends: friends}
}

// Announce notifies every currently-online friend of userID that the user
// changed to status. The friend set is a snapshot; registry state may move
// under us and individual deliveries are best effort.
func (b *PresenceBroadcaster) Announce(ctx context.Context, userID, status string) error {
	friendIDs, err := b.friends.FriendIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch friends of %s: %w", userID, err)
	}

	payload, err := json.Marshal(statusEvent{Type: "status", User: userID, Status: status})
	if err != nil {
		return err
	}

	for _, friendID := range friendIDs {
		if !b.hub.IsOnline(friendID) {
			continue
		}
		if err := b.hub.SendToUser(friendID, payload); err != nil && !errors.Is(err, ErrNotConnected) {
			// A broken friend connection was already evicted by the hub;
			// nothing more to do than note it.
			log.Printf("presence delivery to %s failed: %v", friendID, err)
		}
	}
	return nil
}

// SendInitialSnapshot sends the caller a bulk listing of which of their
// friends are online right now, over the connection that just completed
// its handshake.
func (b *PresenceBroadcaster) SendInitialSnapshot(ctx context.Context, userID string, conn Sender) error {
	friendIDs, err := b.friends.FriendIDs(ctx, userID)
	if err != nil {
		return fmt.Errorf("fetch friends of %s: %w", userID, err)
	}

	payload, err := json.Marshal(initialStatus{
		Type:        "initial_status",
		OnlineUsers: b.hub.OnlineAmong(friendIDs),
	})
	if err != nil {
		return err
	}
	return conn.Send(payload)
}
