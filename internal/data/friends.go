package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var (
	ErrFriendshipExists   = errors.New("friendship or request already exists")
	ErrFriendshipNotFound = errors.New("friend request not found")
	ErrSelfFriendship     = errors.New("cannot friend yourself")
	ErrNotAddressee       = errors.New("only the addressee can respond to a request")
	ErrRequestNotPending  = errors.New("request already responded to")
)

// FriendsStore is the friend graph: directed requests that become
// undirected friend edges once accepted. The relay only ever reads it
// through FriendIDs.
type FriendsStore struct {
	coll *mongo.Collection
}

// NewFriendsStore returns a FriendsStore using the given collection.
func NewFriendsStore(coll *mongo.Collection) *FriendsStore {
	return &FriendsStore{coll: coll}
}

// CreateRequest inserts a pending request from requester to addressee.
// An existing pending or accepted edge in either direction blocks a new
// request; a previously rejected one does not.
func (f *FriendsStore) CreateRequest(ctx context.Context, requesterID, addresseeID string) (*Friendship, error) {
	if requesterID == addresseeID {
		return nil, ErrSelfFriendship
	}

	existing := f.coll.FindOne(ctx, bson.M{
		"$or": bson.A{
			bson.M{"requester_id": requesterID, "addressee_id": addresseeID},
			bson.M{"requester_id": addresseeID, "addressee_id": requesterID},
		},
		"status": bson.M{"$in": bson.A{FriendshipPending, FriendshipAccepted}},
	})
	if err := existing.Err(); err == nil {
		return nil, ErrFriendshipExists
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	now := time.Now()
	fr := &Friendship{
		RequesterID: requesterID,
		AddresseeID: addresseeID,
		Status:      FriendshipPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	result, err := f.coll.InsertOne(ctx, fr)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrFriendshipExists
		}
		return nil, err
	}

	fr.ID = result.InsertedID.(bson.ObjectID)
	return fr, nil
}

// Respond accepts or rejects a pending request. Only the addressee of the
// request may respond, and only while it is still pending.
func (f *FriendsStore) Respond(ctx context.Context, requestID, userID string, accept bool) (*Friendship, error) {
	oid, err := bson.ObjectIDFromHex(requestID)
	if err != nil {
		return nil, ErrFriendshipNotFound
	}

	var fr Friendship
	if err := f.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&fr); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrFriendshipNotFound
		}
		return nil, err
	}

	if fr.AddresseeID != userID {
		return nil, ErrNotAddressee
	}
	if fr.Status != FriendshipPending {
		return nil, ErrRequestNotPending
	}

	status := FriendshipRejected
	if accept {
		status = FriendshipAccepted
	}

	_, err = f.coll.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"status": status, "updated_at": time.Now()}},
	)
	if err != nil {
		return nil, err
	}

	fr.Status = status
	return &fr, nil
}

// FriendIDs returns the ids of the user's accepted friends, either side of
// the edge. This is the read the presence broadcaster depends on.
func (f *FriendsStore) FriendIDs(ctx context.Context, userID string) ([]string, error) {
	cursor, err := f.coll.Find(ctx, bson.M{
		"$or": bson.A{
			bson.M{"requester_id": userID},
			bson.M{"addressee_id": userID},
		},
		"status": FriendshipAccepted,
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var edges []*Friendship
	if err := cursor.All(ctx, &edges); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(edges))
	for _, e := range edges {
		if e.RequesterID == userID {
			ids = append(ids, e.AddresseeID)
		} else {
			ids = append(ids, e.RequesterID)
		}
	}
	return ids, nil
}

// ReceivedRequests lists pending requests addressed to the user.
func (f *FriendsStore) ReceivedRequests(ctx context.Context, userID string) ([]*Friendship, error) {
	return f.findRequests(ctx, bson.M{"addressee_id": userID, "status": FriendshipPending})
}

// SentRequests lists pending requests the user has sent.
func (f *FriendsStore) SentRequests(ctx context.Context, userID string) ([]*Friendship, error) {
	return f.findRequests(ctx, bson.M{"requester_id": userID, "status": FriendshipPending})
}

func (f *FriendsStore) findRequests(ctx context.Context, filter bson.M) ([]*Friendship, error) {
	cursor, err := f.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reqs []*Friendship
	if err := cursor.All(ctx, &reqs); err != nil {
		return nil, err
	}
	return reqs, nil
}
