package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campusrelay/internal/auth"
	"campusrelay/internal/config"
	"campusrelay/internal/data"
	"campusrelay/internal/db"
	"campusrelay/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	dbClient, err := db.New(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}
	defer func() {
		_ = dbClient.Close(context.Background())
	}()

	// Ensure indexes exist
	if err := dbClient.CreateIndexes(ctx); err != nil {
		log.Fatalf("failed to create indexes: %v", err)
	}

	// Create stores
	usersStore := data.NewUsersStore(dbClient.UsersCollection())
	msgsStore := data.NewMessagesStore(dbClient.MessagesCollection())
	friendsStore := data.NewFriendsStore(dbClient.FriendshipsCollection())

	// Token manager: rotating key set if configured, single secret
	// otherwise. Tokens are valid for 24 hours.
	var jwtMgr *auth.JWTManager
	if len(cfg.JWTKeys) > 0 {
		jwtMgr = auth.NewJWTManagerFromKeys(cfg.JWTKeys, cfg.JWTActiveKid, 24*time.Hour)
	} else {
		jwtMgr = auth.NewJWTManager(cfg.JWTSecret, 24*time.Hour)
	}

	// Limiters: a strict one for the credential endpoints (small burst to
	// allow a couple of quick retries) and a looser one for inbound chat
	// payloads per user.
	authLimiter := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, 1*time.Minute)
	defer authLimiter.Stop()
	msgLimiter := middleware.NewLimiterStore(cfg.MessageRPM, 20, 1*time.Minute)
	defer msgLimiter.Stop()

	// Connection hub, presence broadcaster and the server itself.
	hub := NewConnectionHub()
	presence := NewPresenceBroadcaster(hub, friendsStore)
	srv := newServer(usersStore, msgsStore, friendsStore, jwtMgr, hub, presence, authLimiter, msgLimiter)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		var err error
		if cfg.TLSCert != "" && cfg.TLSKey != "" {
			log.Printf("server listening on :%s (TLS)", cfg.Port)
			err = httpServer.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			log.Printf("server listening on :%s", cfg.Port)
			err = httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server exit: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
