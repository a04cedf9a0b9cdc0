package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/marketplace-orders/internal/orders"
)

type ActorResolver interface {
	ResolveActor(token string) (orders.Actor, error)
}

type actorKey struct{}

func WithActor(ctx context.Context, a orders.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFrom(ctx context.Context) (orders.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(orders.Actor)
	return a, ok
}

// Authenticate rejects requests without a resolvable bearer token.
func Authenticate(res ActorResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(h, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				writeJSON(w, http.StatusUnauthorized, ErrorResp{Error: "unauthenticated", Message: "missing bearer token"})
				return
			}
			a, err := res.ResolveActor(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, ErrorResp{Error: "unauthenticated", Message: "invalid bearer token"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
		})
	}
}
