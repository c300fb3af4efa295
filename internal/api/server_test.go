package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/workspace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func reply(v any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/teams", reply([]any{}))
	r.Get("/data-sources", reply([]map[string]any{
		{"id": 1, "display_name": "Engineering Wiki", "source_type": "confluence", "is_active": true},
		{"id": 2, "display_name": "Old Jira", "source_type": "jira", "is_active": false},
	}))
	r.Get("/chat/sessions", reply([]map[string]any{{"id": 9, "title": "New Chat", "created_at": "2024-05-01T00:00:00Z"}}))
	r.Get("/chat/sessions/{id}/messages", reply([]any{}))
	r.Get("/models", reply(map[string]any{"models": []map[string]any{{"name": "llama3.2"}}}))
	r.Post("/data-sources/{id}/sync", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "id") == "2" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Access denied"})
			return
		}
		reply(map[string]string{"message": "Sync started"})(w, r)
	})
	r.Get("/data-sources/{id}/sync-history", reply([]map[string]any{
		{"id": 77, "sync_status": "success", "started_at": "2024-05-01T10:00:00Z", "documents_processed": 12},
	}))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, token string, signedIn bool) (*Server, *workspace.Workspace) {
	t.Helper()
	be := newBackend(t)
	client := backend.New(be.URL, discardLogger(), backend.WithTimeout(5*time.Second))
	ws := workspace.New(client, nil, workspace.Config{PollInterval: time.Hour, SyncRecheckDelay: time.Hour}, nil, discardLogger())
	t.Cleanup(ws.Close)
	if signedIn {
		if err := ws.Auth.SignIn(context.Background(), "tok", backend.User{ID: "1", Username: "alice"}); err != nil {
			t.Fatalf("SignIn: %v", err)
		}
	}
	return NewServer(8760, ws, token, discardLogger()), ws
}

func do(srv *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "secret", false)

	w := do(srv, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestStatusEndpoint_RequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, "secret", true)

	if w := do(srv, "GET", "/api/v1/workspace/status", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}
	if w := do(srv, "GET", "/api/v1/workspace/status", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := do(srv, "GET", "/api/v1/workspace/status", "secret"); w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "", true)

	w := do(srv, "GET", "/api/v1/workspace/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["authenticated"] != true || body["username"] != "alice" {
		t.Errorf("unexpected identity: %v", body)
	}
	if body["context"] != "personal" || body["chat_state"] != "idle" || body["model"] != "llama3.2" {
		t.Errorf("unexpected workspace fields: %v", body)
	}
	if sel, _ := body["selection"].([]any); len(sel) != 1 || sel[0] != float64(1) {
		t.Errorf("expected selection [1], got %v", body["selection"])
	}
	if body["active_session"] != float64(9) {
		t.Errorf("expected active session 9, got %v", body["active_session"])
	}
}

func TestStatusEndpoint_SignedOut(t *testing.T) {
	srv, _ := newTestServer(t, "", false)

	var body map[string]any
	json.NewDecoder(do(srv, "GET", "/api/v1/workspace/status", "").Body).Decode(&body)
	if body["authenticated"] != false {
		t.Errorf("expected authenticated false, got %v", body["authenticated"])
	}
}

func TestSyncEndpoint(t *testing.T) {
	srv, ws := newTestServer(t, "", true)
	if err := ws.Poller.RefreshSource(context.Background(), "1"); err != nil {
		t.Fatalf("RefreshSource: %v", err)
	}

	w := do(srv, "GET", "/api/v1/workspace/sync", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Context string `json:"context"`
		Sources []struct {
			ID       backend.ID `json:"id"`
			Selected bool       `json:"selected"`
			Syncing  bool       `json:"syncing"`
			Latest   *struct {
				SyncStatus string `json:"sync_status"`
			} `json:"latest"`
		} `json:"sources"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Context != "personal" || len(body.Sources) != 2 {
		t.Fatalf("unexpected body %+v", body)
	}
	first := body.Sources[0]
	if first.ID != "1" || !first.Selected || first.Syncing {
		t.Errorf("unexpected first source %+v", first)
	}
	if first.Latest == nil || first.Latest.SyncStatus != "completed" {
		t.Errorf("expected normalised completed status, got %+v", first.Latest)
	}
	if body.Sources[1].Latest != nil || body.Sources[1].Selected {
		t.Errorf("inactive source without history should be bare, got %+v", body.Sources[1])
	}
}

func TestTriggerSyncEndpoint(t *testing.T) {
	srv, ws := newTestServer(t, "", true)

	w := do(srv, "POST", "/api/v1/workspace/sources/1/sync", "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if !ws.Poller.IsSyncing("1") {
		t.Error("expected source marked syncing")
	}
	if w := do(srv, "POST", "/api/v1/workspace/sources/1/sync", ""); w.Code != http.StatusConflict {
		t.Errorf("expected 409 while syncing, got %d", w.Code)
	}
	if w := do(srv, "POST", "/api/v1/workspace/sources/42/sync", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown source, got %d", w.Code)
	}
}

func TestTriggerSyncEndpoint_Forbidden(t *testing.T) {
	srv, ws := newTestServer(t, "", true)

	w := do(srv, "POST", "/api/v1/workspace/sources/2/sync", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "Access denied") {
		t.Errorf("expected service detail in body, got %s", w.Body.String())
	}
	if !ws.Auth.Authenticated() {
		t.Error("a permission denial must not sign the workspace out")
	}
	if ws.Poller.IsSyncing("2") {
		t.Error("failed trigger must clear the syncing flag")
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "", false)

	if w := do(srv, "GET", "/nonexistent", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
