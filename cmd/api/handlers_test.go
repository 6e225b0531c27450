package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"campusrelay/internal/auth"
	"campusrelay/internal/data"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *auth.JWTManager) {
	t.Helper()

	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	hub := NewConnectionHub()
	friends := &fakeFriends{graph: map[string][]string{}}
	srv := newServer(newFakeUsers(), &fakeMsgs{}, friends, jwtMgr, hub,
		NewPresenceBroadcaster(hub, friends), newTestLimiter(t), newTestLimiter(t))

	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return srv, ts, jwtMgr
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	buf, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func TestRegisterAndLogin(t *testing.T) {
	_, ts, jwtMgr := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/users/register", map[string]string{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "testPass123",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", resp.StatusCode)
	}

	var reg tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&reg); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	if reg.Token == "" || reg.UserID == "" {
		t.Fatal("register response missing token or user_id")
	}
	claims, err := jwtMgr.VerifyToken(reg.Token)
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != reg.UserID {
		t.Fatal("token subject does not match returned user_id")
	}

	// duplicate registration
	resp = postJSON(t, ts.URL+"/v1/users/register", map[string]string{
		"username": "alice2",
		"email":    "alice@example.com",
		"password": "testPass123",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("duplicate register: expected 400, got %d", resp.StatusCode)
	}

	// login with correct credentials
	resp = postJSON(t, ts.URL+"/v1/users/login", map[string]string{
		"email":    "alice@example.com",
		"password": "testPass123",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", resp.StatusCode)
	}

	// wrong password and unknown account are indistinguishable
	for _, body := range []map[string]string{
		{"email": "alice@example.com", "password": "wrong"},
		{"email": "ghost@example.com", "password": "whatever"},
	} {
		resp = postJSON(t, ts.URL+"/v1/users/login", body)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("login failure: expected 401, got %d", resp.StatusCode)
		}
	}
}

func TestRegisterValidation(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/v1/users/register", map[string]string{
		"username": "bob",
		"email":    "bob@example.com",
		"password": "short",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d", resp.StatusCode)
	}
}

func TestRequireAuth(t *testing.T) {
	srv, ts, jwtMgr := newTestServer(t)

	// no header
	resp, err := http.Get(ts.URL + "/v1/users/me")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	// valid token
	user, err := srv.users.CreateUser(context.Background(), "carol", "carol@example.com", "hash")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, _, err := jwtMgr.GenerateToken(user.ID, user.Username, user.Email)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}

	var got data.User
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if got.Username != "carol" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, ts, jwtMgr := newTestServer(t)

	alice := bson.NewObjectID()
	bob := bson.NewObjectID()
	if _, err := srv.msgs.SaveMessage(context.Background(), alice.Hex(), bob.Hex(), "hello"); err != nil {
		t.Fatalf("seed message: %v", err)
	}

	token, _, err := jwtMgr.GenerateToken(alice, "alice", "alice@example.com")
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/chat/history/%s", ts.URL, bob.Hex()), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var msgs []*data.Message
	if err := json.NewDecoder(resp.Body).Decode(&msgs); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello" {
		t.Fatalf("unexpected history: %+v", msgs)
	}

	// invalid limit is rejected
	req, _ = http.NewRequest(http.MethodGet, fmt.Sprintf("%s/v1/chat/history/%s?limit=9999", ts.URL, bob.Hex()), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized limit, got %d", resp.StatusCode)
	}
}

func TestFriendRespondValidation(t *testing.T) {
	srv, ts, jwtMgr := newTestServer(t)

	user, err := srv.users.CreateUser(context.Background(), "dave", "dave@example.com", "hash")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, _, err := jwtMgr.GenerateToken(user.ID, user.Username, user.Email)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/friends/respond/abc/maybe", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid action, got %d", resp.StatusCode)
	}
}
