package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ActorMiddleware extracts the operator attribution token from the
// X-Actor-Token header and stores it in the request context. The token is
// opaque here; validation belongs to the authentication collaborator in
// front of this service.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := r.Header.Get("X-Actor-Token")
		ctx := context.WithValue(r.Context(), "actor", actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), "request_id", requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value("actor").(string); ok {
		return actor
	}
	return ""
}
