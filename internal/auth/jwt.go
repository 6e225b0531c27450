// Package auth issues and verifies the JWT tokens that gate both the REST
// surface and the websocket handshake, and wraps bcrypt password hashing.
package auth

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"

	"campusrelay/internal/normalize"
)

// ErrInvalidToken is returned for any token that fails verification.
// Callers must not distinguish why verification failed.
var ErrInvalidToken = errors.New("invalid token")

// JWTManager signs and validates the HS256 tokens used by the API. It holds
// one or more signing keys indexed by kid so keys can be rotated without
// invalidating previously-issued tokens.
type JWTManager struct {
	keys      map[string]string
	activeKid string
	duration  time.Duration
}

// Claims is the custom JWT payload (user id, username, email).
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

// NewJWTManager returns a manager with a single signing secret.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		keys:     map[string]string{"": secretKey},
		duration: duration,
	}
}

// NewJWTManagerFromKeys returns a manager with a kid-indexed key set.
// New tokens are signed with activeKid; verification accepts any key in
// the set so older tokens stay valid across a rotation. If activeKid is
// empty the lexicographically smallest kid is used.
func NewJWTManagerFromKeys(keys map[string]string, activeKid string, duration time.Duration) *JWTManager {
	if activeKid == "" {
		kids := make([]string, 0, len(keys))
		for k := range keys {
			kids = append(kids, k)
		}
		sort.Strings(kids)
		if len(kids) > 0 {
			activeKid = kids[0]
		}
	}
	return &JWTManager{keys: keys, activeKid: activeKid, duration: duration}
}

// GenerateToken issues a signed JWT for a user. The email claim is stored
// normalized so downstream comparisons are case-insensitive.
func (m *JWTManager) GenerateToken(userID bson.ObjectID, username, email string) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.duration)

	claims := &Claims{
		UserID:   userID.Hex(),
		Username: normalize.Username(username),
		Email:    normalize.Email(email),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	if m.activeKid != "" {
		token.Header["kid"] = m.activeKid
	}

	tokenString, err := token.SignedString([]byte(m.keys[m.activeKid]))
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims. The
// signing key is selected by the token's kid header; tokens without a kid
// fall back to the single-secret key.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		key, ok := m.keys[kid]
		if !ok {
			return nil, fmt.Errorf("unknown signing key id: %q", kid)
		}
		return []byte(key), nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword returns a bcrypt hash for the provided plaintext.
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
// Comparison is timing-safe.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
