// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the relay's collections.
type Client struct {
	client *mongo.Client

	// db is the "campus_relay" database; collections ("users", "messages",
	// "friendships") are accessed through it.
	db *mongo.Database
}

// New connects to MongoDB, verifies the connection with a ping and returns
// a Client.
func New(ctx context.Context, mongoURI string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database("campus_relay"),
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// MessagesCollection returns the messages collection (the durable chat log).
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// FriendshipsCollection returns the friendships collection.
func (c *Client) FriendshipsCollection() *mongo.Collection {
	return c.db.Collection("friendships")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// Users: unique email prevents duplicate registration; username is
	// indexed for search.
	usersIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "username", Value: 1}},
		},
	}
	if _, err := c.UsersCollection().Indexes().CreateMany(ctx, usersIndexes); err != nil {
		return fmt.Errorf("failed to create users indexes: %w", err)
	}

	// Messages: (sender, receiver, sent_at) serves history lookups between
	// two users; sent_at alone serves the recent-chats aggregation.
	// bson.D keeps the compound key order stable; a map would not.
	messageIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "sender_id", Value: 1}, {Key: "receiver_id", Value: 1}, {Key: "sent_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "sent_at", Value: -1}},
		},
	}
	if _, err := c.MessagesCollection().Indexes().CreateMany(ctx, messageIndexes); err != nil {
		return fmt.Errorf("failed to create message indexes: %w", err)
	}

	// Friendships: unique (requester, addressee) pair prevents duplicate
	// requests in the same direction; addressee+status serves the received
	// requests listing.
	friendshipIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "requester_id", Value: 1}, {Key: "addressee_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "addressee_id", Value: 1}, {Key: "status", Value: 1}},
		},
	}
	if _, err := c.FriendshipsCollection().Indexes().CreateMany(ctx, friendshipIndexes); err != nil {
		return fmt.Errorf("failed to create friendship indexes: %w", err)
	}

	return nil
}
