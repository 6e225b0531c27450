package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/v2/bson"

	"campusrelay/internal/auth"
	"campusrelay/internal/data"
	"campusrelay/internal/normalize"
)

// tokenResponse is returned by register and login.
type tokenResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleRegister creates a user and returns a token for it.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}
	if normalize.Username(req.Username) == "" || normalize.Email(req.Email) == "" || len(req.Password) < 8 {
		errorJSON(w, http.StatusBadRequest, "username, email and a password of at least 8 characters are required")
		return
	}

	// key the limiter by account as well as by IP, so one address cannot
	// hammer a single account from many sources and vice versa
	if !s.authLimiter.Allow("email:" + normalize.Email(req.Email)) {
		errorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	user, err := s.users.CreateUser(r.Context(), req.Username, req.Email, hashed)
	if err != nil {
		if errors.Is(err, data.ErrUserExists) {
			errorJSON(w, http.StatusBadRequest, "user already exists")
			return
		}
		log.Printf("create user failed: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.Username, user.Email)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse{Token: token, UserID: user.ID.Hex(), ExpiresAt: expiresAt})
}

// handleLogin authenticates a user and returns a token. A missing user
// and a wrong password are indistinguishable to the caller.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &req); err != nil {
		errorJSON(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.authLimiter.Allow("email:" + normalize.Email(req.Email)) {
		errorJSON(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			errorJSON(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Printf("login lookup failed: %v", err)
		errorJSON(w, http.StatusInternalServerError, "login failed")
		return
	}

	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		errorJSON(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.auth.GenerateToken(user.ID, user.Username, user.Email)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, UserID: user.ID.Hex(), ExpiresAt: expiresAt})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	id, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		errorJSON(w, http.StatusUnauthorized, "invalid token subject")
		return
	}

	user, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			errorJSON(w, http.StatusNotFound, "user not found")
			return
		}
		errorJSON(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// handleSearchUsers finds users by username or email substring.
func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	query := r.URL.Query().Get("query")
	if query == "" {
		errorJSON(w, http.StatusBadRequest, "query parameter is required")
		return
	}

	users, err := s.users.SearchUsers(r.Context(), query, 20)
	if err != nil {
		log.Printf("user search failed: %v", err)
		errorJSON(w, http.StatusInternalServerError, "search failed")
		return
	}
	if users == nil {
		users = []*data.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// handleFriends lists the authenticated user's accepted friends.
func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	ids, err := s.friends.FriendIDs(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("friend listing failed: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to list friends")
		return
	}

	friends, err := s.users.GetUsersByIDs(r.Context(), ids)
	if err != nil {
		log.Printf("friend lookup failed: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to list friends")
		return
	}
	if friends == nil {
		friends = []*data.User{}
	}
	writeJSON(w, http.StatusOK, friends)
}

// handleFriendRequest sends a friend request to :user_id.
func (s *Server) handleFriendRequest(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	targetID := ps.ByName("user_id")
	exists, err := s.users.UserExists(r.Context(), targetID)
	if err != nil {
		errorJSON(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !exists {
		errorJSON(w, http.StatusNotFound, "user not found")
		return
	}

	req, err := s.friends.CreateRequest(r.Context(), claims.UserID, targetID)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrSelfFriendship), errors.Is(err, data.ErrFriendshipExists):
			errorJSON(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("friend request failed: %v", err)
			errorJSON(w, http.StatusInternalServerError, "failed to send request")
		}
		return
	}

	writeJSON(w, http.StatusOK, req)
}

// handleFriendRespond accepts or rejects the pending request :request_id.
func (s *Server) handleFriendRespond(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	action := ps.ByName("action")
	if action != "accept" && action != "reject" {
		errorJSON(w, http.StatusBadRequest, "action must be accept or reject")
		return
	}

	fr, err := s.friends.Respond(r.Context(), ps.ByName("request_id"), claims.UserID, action == "accept")
	if err != nil {
		switch {
		case errors.Is(err, data.ErrFriendshipNotFound):
			errorJSON(w, http.StatusNotFound, err.Error())
		case errors.Is(err, data.ErrNotAddressee):
			errorJSON(w, http.StatusForbidden, err.Error())
		case errors.Is(err, data.ErrRequestNotPending):
			errorJSON(w, http.StatusConflict, err.Error())
		default:
			log.Printf("friend respond failed: %v", err)
			errorJSON(w, http.StatusInternalServerError, "failed to respond")
		}
		return
	}

	writeJSON(w, http.StatusOK, fr)
}

// handleReceivedRequests lists pending requests addressed to the caller.
func (s *Server) handleReceivedRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.listRequests(w, r, func(userID string) ([]*data.Friendship, error) {
		return s.friends.ReceivedRequests(r.Context(), userID)
	})
}

// handleSentRequests lists pending requests the caller has sent.
func (s *Server) handleSentRequests(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.listRequests(w, r, func(userID string) ([]*data.Friendship, error) {
		return s.friends.SentRequests(r.Context(), userID)
	})
}

func (s *Server) listRequests(w http.ResponseWriter, r *http.Request, list func(string) ([]*data.Friendship, error)) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	reqs, err := list(claims.UserID)
	if err != nil {
		log.Printf("request listing failed: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to list requests")
		return
	}
	if reqs == nil {
		reqs = []*data.Friendship{}
	}
	writeJSON(w, http.StatusOK, reqs)
}

// handleHistory returns the conversation with :user_id, oldest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	limit := int64(100)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 || n > 500 {
			errorJSON(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	msgs, err := s.msgs.GetMessageHistory(r.Context(), claims.UserID, ps.ByName("user_id"), limit)
	if err != nil {
		log.Printf("history lookup failed: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if msgs == nil {
		msgs = []*data.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleRecentChats lists recent conversation partners.
func (s *Server) handleRecentChats(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	claims, ok := getClaimsFromContext(r.Context())
	if !ok {
		errorJSON(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	partners, err := s.msgs.GetRecentChats(r.Context(), claims.UserID, 50)
	if err != nil {
		log.Printf("recent chats failed: %v", err)
		errorJSON(w, http.StatusInternalServerError, "failed to load chats")
		return
	}
	if partners == nil {
		partners = []*data.ChatPartner{}
	}
	writeJSON(w, http.StatusOK, partners)
}

// readJSON decodes a request body, rejecting oversized or trailing input.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response failed: %v", err)
	}
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
