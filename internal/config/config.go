// Package config loads server configuration from the environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the relay needs to start: listen address,
// MongoDB connection, JWT signing material, rate limits and optional TLS.
type Config struct {
	Port     string
	MongoURI string

	// Single-secret mode (JWT_SECRET) or rotating key set (JWT_KEYS as
	// "kid:secret,kid2:secret2" with JWT_ACTIVE_KID picking the signer).
	JWTSecret    string
	JWTKeys      map[string]string
	JWTActiveKid string

	// RateLimitRPM controls requests per minute for register/login.
	RateLimitRPM int

	// MessageRPM controls inbound chat payloads per minute per user.
	MessageRPM int

	TLSCert    string
	TLSKey     string
	RequireTLS bool
}

// Load reads configuration from the environment. A .env file is loaded
// first if present, matching local development setups.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found; using process environment")
	}

	cfg := &Config{
		Port:         getEnv("PORT", "8000"),
		MongoURI:     os.Getenv("MONGODB_URI"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		JWTActiveKid: os.Getenv("JWT_ACTIVE_KID"),
		TLSCert:      os.Getenv("TLS_CERT"),
		TLSKey:       os.Getenv("TLS_KEY"),
		RequireTLS:   os.Getenv("REQUIRE_TLS") == "true",
	}

	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGODB_URI must be set")
	}

	// Parse optional kid:secret pairs for token rotation.
	if keysEnv := os.Getenv("JWT_KEYS"); keysEnv != "" {
		keys := map[string]string{}
		for _, p := range strings.Split(keysEnv, ",") {
			if p == "" {
				continue
			}
			parts := strings.SplitN(p, ":", 2)
			if len(parts) != 2 {
				return nil, fmt.Errorf("invalid JWT_KEYS entry: %s", p)
			}
			keys[parts[0]] = parts[1]
		}
		cfg.JWTKeys = keys
	}
	if cfg.JWTSecret == "" && len(cfg.JWTKeys) == 0 {
		return nil, fmt.Errorf("either JWT_SECRET or JWT_KEYS must be set")
	}

	cfg.RateLimitRPM = 10
	if v := os.Getenv("RATE_LIMIT_RPM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_RPM: %s", v)
		}
		cfg.RateLimitRPM = n
	}

	cfg.MessageRPM = 120
	if v := os.Getenv("MESSAGE_RATE_RPM"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MESSAGE_RATE_RPM: %s", v)
		}
		cfg.MessageRPM = n
	}

	if cfg.RequireTLS && (cfg.TLSCert == "" || cfg.TLSKey == "") {
		return nil, fmt.Errorf("REQUIRE_TLS is true but TLS_CERT/TLS_KEY are not configured")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
