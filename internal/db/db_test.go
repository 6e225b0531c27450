package db

import (
	"context"
	"os"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// These tests are integration tests and require a running MongoDB instance.
// Set MONGODB_URI in the environment before running them.

func TestNewAndCreateIndexes(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	c, err := New(ctx, uri)
	if err != nil {
		t.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		// drop the testing collections and close connection
		_ = c.UsersCollection().Drop(context.Background())
		_ = c.MessagesCollection().Drop(context.Background())
		_ = c.FriendshipsCollection().Drop(context.Background())
		_ = c.Close(context.Background())
	}()

	// should be able to create indexes without error
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}

	// creating them again must be a no-op, not an error
	if err := c.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes (second run) failed: %v", err)
	}

	// the history index must have its columns in exactly this order
	cur, err := c.MessagesCollection().Indexes().List(ctx)
	if err != nil {
		t.Fatalf("list message indexes: %v", err)
	}
	var specs []struct {
		Key bson.D `bson:"key"`
	}
	if err := cur.All(ctx, &specs); err != nil {
		t.Fatalf("decode index specs: %v", err)
	}
	found := false
	for _, spec := range specs {
		if len(spec.Key) != 3 {
			continue
		}
		found = true
		want := []string{"sender_id", "receiver_id", "sent_at"}
		for i, k := range spec.Key {
			if k.Key != want[i] {
				t.Fatalf("history index key %d is %q, want %q", i, k.Key, want[i])
			}
		}
	}
	if !found {
		t.Fatal("compound history index not found")
	}
}
