package core

import (
	"net/http"

	"subsync/internal/types"
)

// Identity headers set by the edge proxy after it has verified the caller's
// credentials. This service trusts them; it never sees raw credentials.
const (
	headerUserID    = "X-User-Id"
	headerActorType = "X-Actor-Type"
)

// IdentityMiddleware populates the request context with the Actor described
// by the trusted identity headers. Requests with no identity headers pass
// through anonymous; route-level guards decide what is required.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(headerUserID)
		if userID == "" {
			next.ServeHTTP(w, r)
			return
		}

		actorType := types.ActorTypeUser
		switch types.ActorType(r.Header.Get(headerActorType)) {
		case types.ActorTypeAdmin:
			actorType = types.ActorTypeAdmin
		case types.ActorTypeSystem:
			actorType = types.ActorTypeSystem
		}

		ctx := types.WithActor(r.Context(), types.Actor{UserID: userID, Type: actorType})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUser rejects requests that carry no resolved Actor.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := types.GetActor(r.Context()); !ok {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose Actor is missing or not an admin.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "authentication required", nil))
			return
		}
		if !actor.IsAdmin() {
			Error(w, r, types.NewAppError(types.ErrCodePermissionAdmin, "admin privileges required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
