package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Friendship status values. A pending edge is a request awaiting a
// response; only accepted edges count as friends.
const (
	FriendshipPending  = "pending"
	FriendshipAccepted = "accepted"
	FriendshipRejected = "rejected"
)

// User maps to the users collection. The password hash is never
// serialized to JSON.
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Username  string        `bson:"username" json:"username"`
	Email     string        `bson:"email" json:"email"`
	Password  string        `bson:"password" json:"-"`
	CreatedAt time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at" json:"-"`
}

// Message maps to the messages collection (the durable chat log).
// Sender and receiver are stored as user id hex strings, the same form
// the connection registry is keyed by.
type Message struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID   string        `bson:"sender_id" json:"sender_id"`
	ReceiverID string        `bson:"receiver_id" json:"receiver_id"`
	Content    string        `bson:"content" json:"content"`
	SentAt     time.Time     `bson:"sent_at" json:"timestamp"`
}

// Friendship maps to the friendships collection: a directed request from
// requester to addressee that becomes an undirected friend edge once
// accepted.
type Friendship struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"id"`
	RequesterID string        `bson:"requester_id" json:"requester_id"`
	AddresseeID string        `bson:"addressee_id" json:"addressee_id"`
	Status      string        `bson:"status" json:"status"`
	CreatedAt   time.Time     `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `bson:"updated_at" json:"-"`
}

// ChatPartner is a minimal struct used by recent-chats responses.
type ChatPartner struct {
	UserID          string    `json:"user_id"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_at"`
}
