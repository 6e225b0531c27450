package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"campusrelay/internal/auth"
)

// context key type for storing auth claims in context
type authContextKey struct{}

// getClaimsFromContext extracts auth claims from the context, if present.
func getClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	v := ctx.Value(authContextKey{})
	if v == nil {
		return nil, false
	}
	c, ok := v.(*auth.Claims)
	return c, ok
}

// requireAuth wraps a handler with Bearer-token authentication and puts
// the verified claims into the request context.
func (s *Server) requireAuth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		header := r.Header.Get("Authorization")
		if header == "" {
			errorJSON(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" {
			errorJSON(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			errorJSON(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), authContextKey{}, claims)
		next(w, r.WithContext(ctx), ps)
	}
}
