// middleware.go - bearer-token request authentication.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/agristock/ledger-engine/ledger"
)

type ctxKey int

const actorKey ctxKey = 0

// Middleware rejects requests without a valid bearer token and stores
// the authenticated actor in the request context.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w, "missing bearer token")
			return
		}

		actor, err := s.Verify(token)
		if err != nil {
			unauthorized(w, "invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), *actor)))
	})
}

// WithActor returns a context carrying the actor. Exposed for tests.
func WithActor(ctx context.Context, actor ledger.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom extracts the authenticated actor placed by Middleware.
func ActorFrom(ctx context.Context) (ledger.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(ledger.Actor)
	return actor, ok
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
