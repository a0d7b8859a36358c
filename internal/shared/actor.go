package shared

import (
	"context"
	"net/http"
	"strconv"
)

// ActorHeader carries the authenticated employee id set by the upstream
// gateway. This service trusts it for attribution and self-approval checks
// only; role checks happen upstream.
const ActorHeader = "X-Actor-ID"

type actorKey struct{}

// ContextWithActor stores the actor id in the context.
func ContextWithActor(ctx context.Context, actorID int64) context.Context {
	return context.WithValue(ctx, actorKey{}, actorID)
}

// ActorFromContext returns the actor id or zero when absent.
func ActorFromContext(ctx context.Context) int64 {
	if id, ok := ctx.Value(actorKey{}).(int64); ok {
		return id
	}
	return 0
}

// ActorMiddleware extracts the actor id header into the request context.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(ActorHeader); raw != "" {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
				r = r.WithContext(ContextWithActor(r.Context(), id))
			}
		}
		next.ServeHTTP(w, r)
	})
}
