package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
	"github.com/MikeSquared-Agency/oracle/internal/workspace"
)

// Server exposes a read-mostly view of a running workspace.
type Server struct {
	router *chi.Mux
	port   int
	ws     *workspace.Workspace
	logger *slog.Logger
	http   *http.Server
}

func NewServer(port int, ws *workspace.Workspace, apiToken string, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		ws:     ws,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1/workspace", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/status", s.status)
		r.Get("/sync", s.syncStatus)
		r.Post("/sources/{id}/sync", s.triggerSync)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("API server starting", "addr", addr)
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// BearerAuthMiddleware rejects requests without the configured token. An
// empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		want := []byte("Bearer " + token)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get("Authorization"))
			if subtle.ConstantTimeCompare(got, want) != 1 {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Status())
}

type sourceSync struct {
	ID          backend.ID                `json:"id"`
	DisplayName string                    `json:"display_name"`
	SourceType  backend.SourceType        `json:"source_type"`
	IsActive    bool                      `json:"is_active"`
	Selected    bool                      `json:"selected"`
	Syncing     bool                      `json:"syncing"`
	Latest      *backend.SyncHistoryEntry `json:"latest,omitempty"`
}

type syncResponse struct {
	Context  string       `json:"context"`
	Running  bool         `json:"poller_running"`
	LastPoll *time.Time   `json:"last_poll,omitempty"`
	Sources  []sourceSync `json:"sources"`
}

func (s *Server) syncStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := s.ws.Poller.Snapshot()
	resp := syncResponse{
		Context: s.ws.Scope().String(),
		Running: s.ws.Poller.Running(),
		Sources: []sourceSync{},
	}
	if last := s.ws.Poller.LastPoll(); !last.IsZero() {
		resp.LastPoll = &last
	}
	for _, src := range s.ws.Sources.Sources() {
		entry := sourceSync{
			ID:          src.ID,
			DisplayName: src.DisplayName,
			SourceType:  src.SourceType,
			IsActive:    src.IsActive,
			Selected:    s.ws.Sources.IsSelected(src.ID),
			Syncing:     s.ws.Poller.IsSyncing(src.ID),
		}
		if latest, ok := snapshot[src.ID]; ok {
			entry.Latest = &latest
		}
		resp.Sources = append(resp.Sources, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) triggerSync(w http.ResponseWriter, r *http.Request) {
	id := backend.ID(strings.TrimSpace(chi.URLParam(r, "id")))
	if _, ok := s.ws.Sources.Get(id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown source " + string(id)})
		return
	}

	msg, err := s.ws.TriggerSync(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"message": msg})
	case errors.Is(err, workspace.ErrSyncInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, workspace.ErrNotAuthenticated), backend.IsAuth(err):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "workspace is not signed in"})
	case errors.Is(err, backend.ErrForbidden):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": backend.Detail(err)})
	default:
		s.logger.Warn("sync trigger via API failed", "source_id", id, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": backend.Detail(err)})
	}
}
