package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore is the durable chat log. SaveMessage assigns the server
// timestamp and id that all delivered copies of a message carry.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using the given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// SaveMessage inserts a message document and returns the saved record with
// its server-assigned id and timestamp populated.
func (m *MessagesStore) SaveMessage(ctx context.Context, senderID, receiverID, content string) (*Message, error) {
	msg := &Message{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		SentAt:     time.Now().UTC(),
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}

	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// GetMessageHistory returns up to limit recent messages between two users,
// ordered oldest first.
func (m *MessagesStore) GetMessageHistory(ctx context.Context, userA, userB string, limit int64) ([]*Message, error) {
	// Sort newest-first while limiting so the most recent messages win,
	// then reverse into chronological order below.
	opts := options.Find().
		SetSort(bson.M{"sent_at": -1}).
		SetLimit(limit)

	filter := bson.M{
		"$or": bson.A{
			bson.M{"sender_id": userA, "receiver_id": userB},
			bson.M{"sender_id": userB, "receiver_id": userA},
		},
	}

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetRecentChats aggregates recent conversation partners with the last
// message exchanged, most recent conversation first.
func (m *MessagesStore) GetRecentChats(ctx context.Context, userID string, limit int64) ([]*ChatPartner, error) {
	pipeline := mongo.Pipeline{
		// messages where this user is either side
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "sender_id", Value: userID}},
				bson.D{{Key: "receiver_id", Value: userID}},
			}},
		}}},

		// oldest first so $last picks the newest message per group
		bson.D{{Key: "$sort", Value: bson.D{{Key: "sent_at", Value: 1}}}},

		// group by the other side of the conversation
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "partner", Value: bson.D{
					{Key: "$cond", Value: bson.A{
						bson.D{{Key: "$eq", Value: bson.A{"$sender_id", userID}}},
						"$receiver_id",
						"$sender_id",
					}},
				}},
			}},
			{Key: "last_message", Value: bson.D{{Key: "$last", Value: "$content"}}},
			{Key: "last_message_at", Value: bson.D{{Key: "$last", Value: "$sent_at"}}},
		}}},

		bson.D{{Key: "$sort", Value: bson.D{{Key: "last_message_at", Value: -1}}}},
		bson.D{{Key: "$limit", Value: limit}},
	}

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var results []struct {
		ID struct {
			Partner string `bson:"partner"`
		} `bson:"_id"`
		LastMessage   string    `bson:"last_message"`
		LastMessageAt time.Time `bson:"last_message_at"`
	}
	if err = cursor.All(ctx, &results); err != nil {
		return nil, err
	}

	partners := make([]*ChatPartner, 0, len(results))
	for _, r := range results {
		partners = append(partners, &ChatPartner{
			UserID:          r.ID.Partner,
			LastMessage:     r.LastMessage,
			LastMessageTime: r.LastMessageAt,
		})
	}
	return partners, nil
}
