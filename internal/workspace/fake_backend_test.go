package workspace

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

const testToken = "tok-valid"

// fakeBackend is an in-memory answer-generation service. Every handler
// records its hit; gates let a test hold a request open.
type fakeBackend struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	token       string
	user        backend.User
	teams       []backend.TeamDetail
	personal    []backend.DataSource
	teamSources map[string][]backend.DataSource
	sessions    []backend.ChatSession
	messages    map[string][]backend.Message
	history     map[string][]backend.SyncHistoryEntry
	models      []backend.Model
	nextID      int
	hits        map[string]int
	queries     []map[string]any

	queryStatus   int
	queryDetail   string
	syncStatus    int
	renameStatus  int
	historyStatus int
	// forbidden answers 403 with the given detail for "METHOD /path" keys.
	forbidden map[string]string

	gates   map[string]chan struct{}
	entered map[string]chan struct{}
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{
		t:     t,
		token: testToken,
		user: backend.User{
			ID: "1", Username: "alice", Email: "alice@example.com", FullName: "Alice Example",
			CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		personal: []backend.DataSource{
			{ID: "s1", DisplayName: "Engineering Wiki", SourceType: backend.SourceConfluence, IsActive: true},
			{ID: "s2", DisplayName: "Platform Jira", SourceType: backend.SourceJira, IsActive: true},
			{ID: "s3", DisplayName: "Old Repos", SourceType: backend.SourceBitbucket, IsActive: false},
		},
		teamSources: map[string][]backend.DataSource{
			"t1": {
				{ID: "t1s1", DisplayName: "Team Wiki", SourceType: backend.SourceConfluence, IsActive: true},
				{ID: "t1s2", DisplayName: "Team Jira", SourceType: backend.SourceJira, IsActive: false},
			},
		},
		messages:  map[string][]backend.Message{},
		history:   map[string][]backend.SyncHistoryEntry{},
		models:    []backend.Model{{Name: "llama3.2"}, {Name: "mistral"}},
		nextID:    100,
		hits:      map[string]int{},
		forbidden: map[string]string{},
		gates:     map[string]chan struct{}{},
		entered:   map[string]chan struct{}{},
	}

	r := chi.NewRouter()
	r.Use(fb.record)

	r.Post("/auth/login", fb.login)
	r.Post("/auth/register", fb.register)
	r.Group(func(r chi.Router) {
		r.Use(fb.requireToken)
		r.Get("/auth/me", fb.me)
		r.Put("/auth/profile", fb.updateProfile)

		r.Get("/teams", fb.listTeams)
		r.Post("/teams", fb.createTeam)
		r.Get("/teams/{id}", fb.getTeam)
		r.Delete("/teams/{id}", fb.deleteTeam)
		r.Post("/teams/{id}/invite", fb.ok)
		r.Delete("/teams/{id}/members/{mid}", fb.ok)
		r.Put("/teams/{id}/members/{mid}/role", fb.ok)
		r.Get("/teams/{id}/data-sources", fb.listSources)
		r.Post("/teams/{id}/data-sources", fb.createSource)

		r.Get("/data-sources", fb.listSources)
		r.Post("/data-sources", fb.createSource)
		r.Put("/data-sources/{id}", fb.updateSource)
		r.Delete("/data-sources/{id}", fb.deleteSource)
		r.Post("/data-sources/{id}/sync", fb.triggerSync)
		r.Post("/data-sources/{id}/test", fb.testConnection)
		r.Get("/data-sources/{id}/sync-history", fb.syncHistory)

		r.Get("/chat/sessions", fb.listSessions)
		r.Post("/chat/sessions", fb.createSession)
		r.Put("/chat/sessions/{id}", fb.renameSession)
		r.Delete("/chat/sessions/{id}", fb.deleteSession)
		r.Get("/chat/sessions/{id}/messages", fb.sessionMessages)
		r.Post("/chat/query", fb.query)

		r.Get("/models", fb.listModels)
	})

	fb.server = httptest.NewServer(r)
	t.Cleanup(func() {
		fb.releaseAll()
		fb.server.Close()
	})
	return fb
}

func (fb *fakeBackend) client() *backend.Client {
	return backend.New(fb.server.URL, discardLogger(), backend.WithHTTPClient(&http.Client{Timeout: 5 * time.Second}))
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gate makes requests to key ("METHOD /path") block until release.
// The returned channel receives once per request that reaches the gate.
func (fb *fakeBackend) gate(key string) <-chan struct{} {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.gates[key] = make(chan struct{})
	fb.entered[key] = make(chan struct{}, 8)
	return fb.entered[key]
}

func (fb *fakeBackend) release(key string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if ch, ok := fb.gates[key]; ok {
		close(ch)
		delete(fb.gates, key)
	}
}

func (fb *fakeBackend) releaseAll() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for key, ch := range fb.gates {
		close(ch)
		delete(fb.gates, key)
	}
}

func (fb *fakeBackend) hitCount(key string) int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.hits[key]
}

func (fb *fakeBackend) totalHits() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	n := 0
	for _, c := range fb.hits {
		n += c
	}
	return n
}

func (fb *fakeBackend) lastQuery() map[string]any {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.queries) == 0 {
		return nil
	}
	return fb.queries[len(fb.queries)-1]
}

func (fb *fakeBackend) set(fn func(fb *fakeBackend)) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fn(fb)
}

func (fb *fakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		fb.mu.Lock()
		fb.hits[key]++
		gate, gated := fb.gates[key]
		entered := fb.entered[key]
		fb.mu.Unlock()

		if gated {
			entered <- struct{}{}
			select {
			case <-gate:
			case <-r.Context().Done():
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (fb *fakeBackend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		want := "Bearer " + fb.token
		denied, isDenied := fb.forbidden[r.Method+" "+r.URL.Path]
		fb.mu.Unlock()
		if r.Header.Get("Authorization") != want {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Could not validate credentials"})
			return
		}
		if isDenied {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": denied})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (fb *fakeBackend) newID(prefix string) backend.ID {
	fb.nextID++
	return backend.ID(fmt.Sprintf("%s%d", prefix, fb.nextID))
}

func (fb *fakeBackend) ok(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (fb *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	if body["username"] != "alice" || body["password"] != "secret1" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect username or password"})
		return
	}
	fb.mu.Lock()
	token := fb.token
	fb.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"access_token": token, "token_type": "bearer"})
}

func (fb *fakeBackend) register(w http.ResponseWriter, r *http.Request) {
	var reg backend.Registration
	json.NewDecoder(r.Body).Decode(&reg)
	if reg.Username == "alice" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Username already registered"})
		return
	}
	writeJSON(w, http.StatusOK, backend.User{ID: "2", Username: reg.Username, Email: reg.Email, FullName: reg.FullName})
}

func (fb *fakeBackend) me(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeJSON(w, http.StatusOK, fb.user)
}

func (fb *fakeBackend) updateProfile(w http.ResponseWriter, r *http.Request) {
	var upd backend.ProfileUpdate
	json.NewDecoder(r.Body).Decode(&upd)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if upd.NewPassword != "" && upd.CurrentPassword != "secret1" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Current password is incorrect"})
		return
	}
	fb.user.Email = upd.Email
	writeJSON(w, http.StatusOK, fb.user)
}

func (fb *fakeBackend) listTeams(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	teams := make([]backend.Team, 0, len(fb.teams))
	for _, d := range fb.teams {
		teams = append(teams, d.Team)
	}
	writeJSON(w, http.StatusOK, teams)
}

func (fb *fakeBackend) createTeam(w http.ResponseWriter, r *http.Request) {
	var in backend.TeamInput
	json.NewDecoder(r.Body).Decode(&in)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	team := backend.Team{ID: fb.newID("t"), Name: in.Name, DisplayName: in.DisplayName, Description: in.Description, MemberCount: 1}
	fb.teams = append(fb.teams, backend.TeamDetail{
		Team:    team,
		Members: []backend.Member{{ID: fb.user.ID, Username: fb.user.Username, Email: fb.user.Email, Role: backend.RoleOwner}},
	})
	writeJSON(w, http.StatusOK, team)
}

func (fb *fakeBackend) getTeam(w http.ResponseWriter, r *http.Request) {
	id := backend.ID(chi.URLParam(r, "id"))
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, d := range fb.teams {
		if d.ID == id {
			writeJSON(w, http.StatusOK, d)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Team not found"})
}

func (fb *fakeBackend) deleteTeam(w http.ResponseWriter, r *http.Request) {
	id := backend.ID(chi.URLParam(r, "id"))
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i, d := range fb.teams {
		if d.ID == id {
			fb.teams = append(fb.teams[:i], fb.teams[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Team deleted"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Team not found"})
}

func (fb *fakeBackend) listSources(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	list := fb.personal
	if teamID := chi.URLParam(r, "id"); teamID != "" {
		list = fb.teamSources[teamID]
	}
	if list == nil {
		list = []backend.DataSource{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (fb *fakeBackend) createSource(w http.ResponseWriter, r *http.Request) {
	var in backend.SourceInput
	json.NewDecoder(r.Body).Decode(&in)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	ds := backend.DataSource{ID: fb.newID("s"), DisplayName: in.DisplayName, SourceType: in.SourceType, IsActive: in.IsActive}
	if teamID := chi.URLParam(r, "id"); teamID != "" {
		fb.teamSources[teamID] = append(fb.teamSources[teamID], ds)
	} else {
		fb.personal = append(fb.personal, ds)
	}
	writeJSON(w, http.StatusOK, ds)
}

func (fb *fakeBackend) updateSource(w http.ResponseWriter, r *http.Request) {
	id := backend.ID(chi.URLParam(r, "id"))
	var in backend.SourceInput
	json.NewDecoder(r.Body).Decode(&in)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	lists := [][]backend.DataSource{fb.personal}
	for _, l := range fb.teamSources {
		lists = append(lists, l)
	}
	for _, list := range lists {
		for i := range list {
			if list[i].ID == id {
				list[i].DisplayName = in.DisplayName
				list[i].IsActive = in.IsActive
				writeJSON(w, http.StatusOK, list[i])
				return
			}
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Data source not found"})
}

func (fb *fakeBackend) deleteSource(w http.ResponseWriter, r *http.Request) {
	id := backend.ID(chi.URLParam(r, "id"))
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i, ds := range fb.personal {
		if ds.ID == id {
			fb.personal = append(fb.personal[:i], fb.personal[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Data source deleted"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Data source not found"})
}

func (fb *fakeBackend) triggerSync(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.syncStatus != 0 {
		writeJSON(w, fb.syncStatus, map[string]string{"detail": "Connector unavailable"})
		return
	}
	fb.history[id] = append([]backend.SyncHistoryEntry{{
		ID:         fb.newID("h"),
		SyncStatus: backend.SyncInProgress,
		StartedAt:  time.Now().UTC(),
	}}, fb.history[id]...)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Sync started"})
}

func (fb *fakeBackend) testConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"connected": chi.URLParam(r, "id") != "s3"})
}

func (fb *fakeBackend) syncHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.historyStatus != 0 {
		writeJSON(w, fb.historyStatus, map[string]string{"detail": "history unavailable"})
		return
	}
	entries := fb.history[id]
	if entries == nil {
		entries = []backend.SyncHistoryEntry{}
	}
	if limit := r.URL.Query().Get("limit"); limit == "1" && len(entries) > 1 {
		entries = entries[:1]
	}
	writeJSON(w, http.StatusOK, entries)
}

func (fb *fakeBackend) listSessions(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	list := fb.sessions
	if list == nil {
		list = []backend.ChatSession{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (fb *fakeBackend) createSession(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	json.NewDecoder(r.Body).Decode(&body)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	session := backend.ChatSession{ID: fb.newID(""), Title: body["title"], CreatedAt: time.Now().UTC()}
	fb.sessions = append([]backend.ChatSession{session}, fb.sessions...)
	writeJSON(w, http.StatusOK, session)
}

func (fb *fakeBackend) renameSession(w http.ResponseWriter, r *http.Request) {
	id := backend.ID(chi.URLParam(r, "id"))
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.renameStatus != 0 {
		writeJSON(w, fb.renameStatus, map[string]string{"detail": "rename failed"})
		return
	}
	for i := range fb.sessions {
		if fb.sessions[i].ID == id {
			fb.sessions[i].Title = r.URL.Query().Get("title")
			writeJSON(w, http.StatusOK, map[string]string{"message": "Session updated successfully"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
}

func (fb *fakeBackend) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := backend.ID(chi.URLParam(r, "id"))
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for i := range fb.sessions {
		if fb.sessions[i].ID == id {
			fb.sessions = append(fb.sessions[:i], fb.sessions[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Session deleted successfully"})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Session not found"})
}

func (fb *fakeBackend) sessionMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	fb.mu.Lock()
	defer fb.mu.Unlock()
	list := fb.messages[id]
	if list == nil {
		list = []backend.Message{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (fb *fakeBackend) query(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.queries = append(fb.queries, body)
	if fb.queryStatus != 0 {
		writeJSON(w, fb.queryStatus, map[string]string{"detail": fb.queryDetail})
		return
	}

	q, _ := body["query"].(string)
	now := time.Now().UTC()
	sources := []backend.SourceCitation{
		{Title: "Feature overview", URL: "https://wiki.example.com/features", SourceType: backend.SourceConfluence, Confidence: 0.91},
	}
	if sid := fmt.Sprint(body["sessionId"]); sid != "" && sid != "<nil>" {
		fb.messages[sid] = append(fb.messages[sid],
			backend.Message{ID: fb.newID(""), Type: backend.MessageUser, Content: q, Timestamp: now},
			backend.Message{ID: fb.newID(""), Type: backend.MessageAssistant, Content: "It answers questions.", Sources: sources, Timestamp: now},
		)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response":        "It answers questions.",
		"sources":         sources,
		"processing_time": 1.42,
	})
}

func (fb *fakeBackend) listModels(w http.ResponseWriter, r *http.Request) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"models": fb.models})
}
