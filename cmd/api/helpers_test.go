package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"campusrelay/internal/data"
	"campusrelay/internal/middleware"
)

// fakeSender records payloads pushed through the hub.
type fakeSender struct {
	mu       sync.Mutex
	payloads [][]byte
	fail     bool
	closed   bool
}

func (f *fakeSender) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("send fail")
	}
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeSender) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeSender) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.payloads))
	copy(out, f.payloads)
	return out
}

func (f *fakeSender) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeUsers implements UsersStore over an in-memory map.
type fakeUsers struct {
	mu    sync.Mutex
	users map[string]*data.User // keyed by id hex
}

func newFakeUsers(users ...*data.User) *fakeUsers {
	f := &fakeUsers{users: map[string]*data.User{}}
	for _, u := range users {
		f.users[u.ID.Hex()] = u
	}
	return f
}

func (f *fakeUsers) CreateUser(_ context.Context, username, email, hashedPassword string) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return nil, data.ErrUserExists
		}
	}
	u := &data.User{ID: bson.NewObjectID(), Username: username, Email: email, Password: hashedPassword, CreatedAt: time.Now()}
	f.users[u.ID.Hex()] = u
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, data.ErrUserNotFound
}

func (f *fakeUsers) GetUserByID(_ context.Context, id bson.ObjectID) (*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id.Hex()]; ok {
		return u, nil
	}
	return nil, data.ErrUserNotFound
}

func (f *fakeUsers) UserExists(_ context.Context, idHex string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.users[idHex]
	return ok, nil
}

func (f *fakeUsers) GetUsersByIDs(_ context.Context, ids []string) ([]*data.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*data.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUsers) SearchUsers(_ context.Context, _ string, _ int64) ([]*data.User, error) {
	return nil, nil
}

// fakeMsgs implements MessagesStore in memory; failures configurable.
type fakeMsgs struct {
	mu       sync.Mutex
	saved    []*data.Message
	failures int // number of SaveMessage calls to fail before succeeding
}

func (f *fakeMsgs) SaveMessage(_ context.Context, senderID, receiverID, content string) (*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("log unavailable")
	}
	msg := &data.Message{
		ID:         bson.NewObjectID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		SentAt:     time.Now().UTC(),
	}
	f.saved = append(f.saved, msg)
	return msg, nil
}

func (f *fakeMsgs) GetMessageHistory(_ context.Context, userA, userB string, _ int64) ([]*data.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*data.Message
	for _, m := range f.saved {
		if (m.SenderID == userA && m.ReceiverID == userB) || (m.SenderID == userB && m.ReceiverID == userA) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMsgs) GetRecentChats(_ context.Context, _ string, _ int64) ([]*data.ChatPartner, error) {
	return nil, nil
}

func (f *fakeMsgs) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// fakeFriends implements FriendsStore with a static friend graph.
type fakeFriends struct {
	graph map[string][]string
}

func (f *fakeFriends) FriendIDs(_ context.Context, userID string) ([]string, error) {
	return f.graph[userID], nil
}

func (f *fakeFriends) CreateRequest(_ context.Context, _, _ string) (*data.Friendship, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFriends) Respond(_ context.Context, _, _ string, _ bool) (*data.Friendship, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeFriends) ReceivedRequests(_ context.Context, _ string) ([]*data.Friendship, error) {
	return nil, nil
}

func (f *fakeFriends) SentRequests(_ context.Context, _ string) ([]*data.Friendship, error) {
	return nil, nil
}

// newTestLimiter returns a limiter loose enough to stay out of the way.
func newTestLimiter(t interface{ Cleanup(func()) }) *middleware.LimiterStore {
	s := middleware.NewLimiterStore(6000, 1000, time.Minute)
	t.Cleanup(s.Stop)
	return s
}
