package main

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.mongodb.org/mongo-driver/v2/bson"

	"campusrelay/internal/auth"
	"campusrelay/internal/data"
	"campusrelay/internal/middleware"
)

// The server depends on the stores through these interfaces so tests can
// substitute fakes without a database.

// UsersStore is the user directory.
type UsersStore interface {
	CreateUser(ctx context.Context, username, email, hashedPassword string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	UserExists(ctx context.Context, idHex string) (bool, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*data.User, error)
	SearchUsers(ctx context.Context, query string, limit int64) ([]*data.User, error)
}

// MessagesStore is the durable message log.
type MessagesStore interface {
	SaveMessage(ctx context.Context, senderID, receiverID, content string) (*data.Message, error)
	GetMessageHistory(ctx context.Context, userA, userB string, limit int64) ([]*data.Message, error)
	GetRecentChats(ctx context.Context, userID string, limit int64) ([]*data.ChatPartner, error)
}

// FriendsStore is the friend graph.
type FriendsStore interface {
	FriendLister
	CreateRequest(ctx context.Context, requesterID, addresseeID string) (*data.Friendship, error)
	Respond(ctx context.Context, requestID, userID string, accept bool) (*data.Friendship, error)
	ReceivedRequests(ctx context.Context, userID string) ([]*data.Friendship, error)
	SentRequests(ctx context.Context, userID string) ([]*data.Friendship, error)
}

// Server wires the REST surface and the websocket relay to the stores,
// the token manager, the connection hub and the presence broadcaster.
type Server struct {
	users   UsersStore
	msgs    MessagesStore
	friends FriendsStore
	auth    *auth.JWTManager

	hub      *ConnectionHub
	presence *PresenceBroadcaster

	authLimiter *middleware.LimiterStore
	msgLimiter  *middleware.LimiterStore
}

// newServer returns a ready-to-use Server.
func newServer(users UsersStore, msgs MessagesStore, friends FriendsStore, authMgr *auth.JWTManager, hub *ConnectionHub, presence *PresenceBroadcaster, authLimiter, msgLimiter *middleware.LimiterStore) *Server {
	return &Server{
		users:       users,
		msgs:        msgs,
		friends:     friends,
		auth:        authMgr,
		hub:         hub,
		presence:    presence,
		authLimiter: authLimiter,
		msgLimiter:  msgLimiter,
	}
}

// routes builds the router. Credential endpoints carry IP rate limiting;
// everything else behind /v1 requires a Bearer token; the websocket
// endpoint authenticates during its own handshake.
func (s *Server) routes() *httprouter.Router {
	router := httprouter.New()

	router.Handler(http.MethodPost, "/v1/users/register",
		middleware.RateLimitHTTP(s.authLimiter, http.HandlerFunc(s.handleRegister)))
	router.Handler(http.MethodPost, "/v1/users/login",
		middleware.RateLimitHTTP(s.authLimiter, http.HandlerFunc(s.handleLogin)))

	router.GET("/v1/users/me", s.requireAuth(s.handleMe))
	router.GET("/v1/users/search", s.requireAuth(s.handleSearchUsers))

	router.GET("/v1/friends", s.requireAuth(s.handleFriends))
	router.POST("/v1/friends/request/:user_id", s.requireAuth(s.handleFriendRequest))
	router.POST("/v1/friends/respond/:request_id/:action", s.requireAuth(s.handleFriendRespond))
	router.GET("/v1/friends/requests/received", s.requireAuth(s.handleReceivedRequests))
	router.GET("/v1/friends/requests/sent", s.requireAuth(s.handleSentRequests))

	router.GET("/v1/chat/history/:user_id", s.requireAuth(s.handleHistory))
	router.GET("/v1/chats", s.requireAuth(s.handleRecentChats))

	router.GET("/ws/chat/:user_id", s.handleChatWS)

	return router
}
