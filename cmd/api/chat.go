package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"campusrelay/internal/data"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The browser clients are served from a different origin in
	// development; access control is the token's job, not the Origin
	// header's.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inboundChat is a chat send request from the client.
type inboundChat struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// errorAck is a structured per-message error reported back over the same
// connection. It never terminates the connection.
type errorAck struct {
	Type   string `json:"type"`
	Code   string `json:"code"`
	Detail string `json:"detail,omitempty"`
}

// Error ack codes.
const (
	ackInvalidPayload  = "invalid_payload"
	ackUnknownReceiver = "unknown_receiver"
	ackPersistFailed   = "persist_failed"
	ackRateLimited     = "rate_limited"
)

// Bounded retry for the durable log. A message that cannot be persisted is
// never delivered.
const (
	persistAttempts = 3
	persistBackoff  = 100 * time.Millisecond
)

// handleChatWS is the websocket endpoint: GET /ws/chat/:user_id?token=...
//
// The handshake verifies the token and checks the verified identity
// against the claimed one before the connection is upgraded; both failure
// modes produce the same opaque 401 so a rejected handshake reveals
// nothing about which check failed. Only a successful handshake touches
// the registry.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	claimedID := ps.ByName("user_id")

	claims, err := s.auth.VerifyToken(r.URL.Query().Get("token"))
	if err != nil || claims.UserID != claimedID {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed for %s: %v", claims.UserID, err)
		return
	}

	client := newWSClient(uuid.NewString(), claims.UserID, conn)

	// The close path runs exactly once no matter how many signals race
	// (read error, write error, hub eviction, server shutdown). The
	// offline announcement fires only when the user's last connection
	// goes away.
	client.onClose = func() {
		if last := s.hub.Unregister(client.userID, client.id); last {
			if err := s.presence.Announce(context.Background(), client.userID, StatusOffline); err != nil {
				log.Printf("offline announce for %s failed: %v", client.userID, err)
			}
		}
	}

	// Register before the write pump starts so any close signal, however
	// early, finds the registry entry and removes it.
	first := s.hub.Register(client.userID, client.id, client)
	defer func() { _ = client.Close() }()

	go client.writePump()

	ctx := r.Context()

	// One-shot presence snapshot so the client can render friend state
	// immediately, then tell online friends this user appeared. The
	// online event fires only on the offline→online transition.
	if err := s.presence.SendInitialSnapshot(ctx, client.userID, client); err != nil {
		log.Printf("initial status for %s failed: %v", client.userID, err)
	}
	if first {
		if err := s.presence.Announce(ctx, client.userID, StatusOnline); err != nil {
			log.Printf("online announce for %s failed: %v", client.userID, err)
		}
	}

	s.relayLoop(ctx, client)
}

// relayLoop receives chat payloads on the connection until it closes.
// Messages from one connection are persisted and relayed strictly in the
// order they arrive here; no ordering is promised across connections.
func (s *Server) relayLoop(ctx context.Context, client *wsClient) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in inboundChat
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("read error on %s connection %s: %v", client.userID, client.id, err)
			}
			return
		}
		s.relay(ctx, client, in)
	}
}

// relay validates, persists and routes one chat payload from client. All
// failure modes are per-message: they are acknowledged on the sender's
// connection and never tear it down.
func (s *Server) relay(ctx context.Context, client *wsClient, in inboundChat) {
	if !s.msgLimiter.Allow(client.userID) {
		s.sendAck(client, ackRateLimited, "sending too fast")
		return
	}

	receiverID := strings.TrimSpace(in.ReceiverID)
	if receiverID == "" || strings.TrimSpace(in.Content) == "" {
		s.sendAck(client, ackInvalidPayload, "receiver_id and content are required")
		return
	}

	exists, err := s.users.UserExists(ctx, receiverID)
	if err != nil {
		log.Printf("receiver lookup failed: %v", err)
		s.sendAck(client, ackPersistFailed, "temporarily unable to deliver")
		return
	}
	if !exists {
		s.sendAck(client, ackUnknownReceiver, "no such user")
		return
	}

	// Persist first: the receiver must never see a message the durable log
	// does not hold, and the delivered copies carry the log's id and
	// timestamp. Content is stored and delivered exactly as the sender
	// supplied it; escaping for display is the client's concern.
	msg, err := s.saveWithRetry(ctx, client.userID, receiverID, in.Content)
	if err != nil {
		log.Printf("persist from %s to %s failed: %v", client.userID, receiverID, err)
		s.sendAck(client, ackPersistFailed, "message not delivered, try again")
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal message %s failed: %v", msg.ID.Hex(), err)
		return
	}

	// Deliver to the receiver's connections and independently echo to all
	// of the sender's own connections, so every device of both parties
	// converges on the same transcript with the canonical id/timestamp.
	// An offline receiver is not an error: the message is in the log.
	if err := s.hub.SendToUser(receiverID, payload); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("delivery to %s failed: %v", receiverID, err)
	}
	if err := s.hub.SendToUser(client.userID, payload); err != nil && !errors.Is(err, ErrNotConnected) {
		log.Printf("echo to %s failed: %v", client.userID, err)
	}
}

// saveWithRetry appends to the durable log with bounded backoff.
func (s *Server) saveWithRetry(ctx context.Context, senderID, receiverID, content string) (msg *data.Message, err error) {
	backoff := persistBackoff
	for attempt := 0; attempt < persistAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		msg, err = s.msgs.SaveMessage(ctx, senderID, receiverID, content)
		if err == nil {
			return msg, nil
		}
	}
	return nil, err
}

func (s *Server) sendAck(client *wsClient, code, detail string) {
	payload, err := json.Marshal(errorAck{Type: "error", Code: code, Detail: detail})
	if err != nil {
		return
	}
	if err := client.Send(payload); err != nil {
		log.Printf("error ack to %s dropped: %v", client.userID, err)
	}
}
