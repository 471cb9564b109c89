package core

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"subsync/internal/types"
)

func TestIdentityMiddleware_PopulatesActor(t *testing.T) {
	var actor types.Actor
	var found bool
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, found = types.GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Id", "user-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !found {
		t.Fatal("expected actor in context")
	}
	if actor.UserID != "user-1" || actor.Type != types.ActorTypeUser {
		t.Errorf("unexpected actor: %+v", actor)
	}
}

func TestIdentityMiddleware_AdminType(t *testing.T) {
	var actor types.Actor
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ = types.GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Id", "admin-1")
	req.Header.Set("X-Actor-Type", "admin")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if !actor.IsAdmin() {
		t.Errorf("expected admin actor, got %+v", actor)
	}
}

func TestIdentityMiddleware_UnknownTypeDefaultsToUser(t *testing.T) {
	var actor types.Actor
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, _ = types.GetActor(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-User-Id", "user-1")
	req.Header.Set("X-Actor-Type", "superuser")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if actor.Type != types.ActorTypeUser {
		t.Errorf("expected user type, got %q", actor.Type)
	}
}

func TestIdentityMiddleware_AnonymousPassesThrough(t *testing.T) {
	var found bool
	handler := IdentityMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, found = types.GetActor(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if found {
		t.Error("expected no actor for anonymous request")
	}
	if rr.Code != http.StatusOK {
		t.Errorf("anonymous request must reach the handler, got %d", rr.Code)
	}
}

func TestRequireUser_RejectsAnonymous(t *testing.T) {
	handler := RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestRequireAdmin_RejectsPlainUser(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{UserID: "user-1", Type: types.ActorTypeUser}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rr.Code)
	}
}

func TestRequireAdmin_AllowsAdmin(t *testing.T) {
	handler := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{UserID: "admin-1", Type: types.ActorTypeAdmin}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
}
