package workspace

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

func TestSources_Toggle(t *testing.T) {
	fb := newFakeBackend(t)
	w := newTestWorkspace(t, fb, testOptions{})
	signIn(t, w, fb)

	on, err := w.Sources.Toggle("s1")
	if err != nil || on {
		t.Fatalf("expected s1 deselected, got (%v, %v)", on, err)
	}
	if got := w.Sources.SelectedIDs(); !slices.Equal(got, []backend.ID{"s2"}) {
		t.Errorf("expected [s2], got %v", got)
	}
	on, err = w.Sources.Toggle("s1")
	if err != nil || !on {
		t.Fatalf("expected s1 reselected, got (%v, %v)", on, err)
	}

	var ve *backend.ValidationError
	if _, err := w.Sources.Toggle("s3"); !errors.As(err, &ve) {
		t.Errorf("expected inactive source rejected, got %v", err)
	}
	if _, err := w.Sources.Toggle("nope"); !errors.As(err, &ve) {
		t.Errorf("expected unknown source rejected, got %v", err)
	}
	if got := w.Sources.SelectedIDs(); !slices.Equal(got, []backend.ID{"s1", "s2"}) {
		t.Errorf("rejected toggles changed selection: %v", got)
	}
}

func TestSources_SelectIsAllOrNothing(t *testing.T) {
	fb := newFakeBackend(t)
	w := newTestWorkspace(t, fb, testOptions{})
	signIn(t, w, fb)

	if err := w.Sources.Select([]backend.ID{"s2", "s3"}); err == nil {
		t.Fatal("expected inactive source to be rejected")
	}
	if got := w.Sources.SelectedIDs(); !slices.Equal(got, []backend.ID{"s1", "s2"}) {
		t.Errorf("failed Select changed selection: %v", got)
	}
	if err := w.Sources.Select([]backend.ID{"s2"}); err != nil {
		t.Fatal(err)
	}
	if !w.Sources.IsSelected("s2") || w.Sources.IsSelected("s1") {
		t.Error("expected only s2 selected")
	}
}

func TestSources_ListReseedsSelection(t *testing.T) {
	fb := newFakeBackend(t)
	w := newTestWorkspace(t, fb, testOptions{})
	ctx := context.Background()
	signIn(t, w, fb)

	if _, err := w.Sources.Toggle("s1"); err != nil {
		t.Fatal(err)
	}
	fb.set(func(fb *fakeBackend) { fb.personal = fb.personal[1:] })

	list, err := w.Sources.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 sources, got %d", len(list))
	}
	if got := w.Sources.SelectedIDs(); !slices.Equal(got, []backend.ID{"s2"}) {
		t.Errorf("expected selection reset to active sources, got %v", got)
	}
}

func TestSources_SelectionOrder(t *testing.T) {
	fb := newFakeBackend(t)
	fb.personal = []backend.DataSource{
		{ID: "10", DisplayName: "b", SourceType: backend.SourceJira, IsActive: true},
		{ID: "9", DisplayName: "a", SourceType: backend.SourceJira, IsActive: true},
		{ID: "100", DisplayName: "c", SourceType: backend.SourceJira, IsActive: true},
	}
	w := newTestWorkspace(t, fb, testOptions{})
	signIn(t, w, fb)

	if got, want := w.Sources.SelectedIDs(), []backend.ID{"9", "10", "100"}; !slices.Equal(got, want) {
		t.Errorf("expected numeric order %v, got %v", want, got)
	}
}

func TestCompareIDs_LeadingZeros(t *testing.T) {
	ids := []backend.ID{"10", "001", "2", "01", "0", "abc"}
	slices.SortFunc(ids, compareIDs)
	if want := []backend.ID{"0", "001", "01", "2", "10", "abc"}; !slices.Equal(ids, want) {
		t.Errorf("expected %v, got %v", want, ids)
	}
}

func TestSources_CreateValidatesAndRefetches(t *testing.T) {
	fb := newFakeBackend(t)
	w := newTestWorkspace(t, fb, testOptions{})
	ctx := context.Background()
	signIn(t, w, fb)

	var ve *backend.ValidationError
	if _, err := w.Sources.Create(ctx, backend.SourceInput{SourceType: backend.SourceJira}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := w.Sources.Create(ctx, backend.SourceInput{DisplayName: "x"}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fb.hitCount("POST /data-sources") != 0 {
		t.Fatal("invalid source must not be sent")
	}

	before := fb.hitCount("GET /data-sources")
	ds, err := w.Sources.Create(ctx, backend.SourceInput{
		SourceType:  backend.SourceJira,
		DisplayName: " Support Jira ",
		IsActive:    true,
		Credentials: map[string]string{"base_url": "https://jira.example.com", "api_token": "x"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ds.DisplayName != "Support Jira" {
		t.Errorf("expected trimmed name, got %q", ds.DisplayName)
	}
	if fb.hitCount("GET /data-sources") != before+1 {
		t.Error("expected list re-fetched after create")
	}
	if _, ok := w.Sources.Get(ds.ID); !ok {
		t.Error("created source not visible")
	}
}

func TestSources_CreateInTeamScope(t *testing.T) {
	fb := newFakeBackend(t)
	w := newTestWorkspace(t, fb, testOptions{})
	ctx := context.Background()
	signIn(t, w, fb)
	if err := w.SetContext(ctx, Team("t1")); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Sources.Create(ctx, backend.SourceInput{SourceType: backend.SourceConfluence, DisplayName: "Team Space", IsActive: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if fb.hitCount("POST /teams/t1/data-sources") != 1 || fb.hitCount("POST /data-sources") != 0 {
		t.Error("expected create addressed to the team collection")
	}
	if len(w.Sources.Sources()) != 3 {
		t.Errorf("expected 3 team sources, got %d", len(w.Sources.Sources()))
	}
}

func TestSources_DeleteRequiresConfirmation(t *testing.T) {
	fb := newFakeBackend(t)
	w := newTestWorkspace(t, fb, testOptions{})
	ctx := context.Background()
	signIn(t, w, fb)

	if err := w.Sources.Delete(ctx, "s1", false); !errors.Is(err, ErrNotConfirmed) {
		t.Fatalf("expected ErrNotConfirmed, got %v", err)
	}
	if fb.hitCount("DELETE /data-sources/s1") != 0 {
		t.Fatal("unconfirmed delete must not be sent")
	}
	if err := w.Sources.Delete(ctx, "s1", true); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := w.Sources.Get("s1"); ok {
		t.Error("deleted source still visible")
	}
	if w.Sources.IsSelected("s1") {
		t.Error("deleted source still selected")
	}
	if err := w.Sources.Delete(ctx, "s1", true); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSources_UpdateAndTestConnection(t *testing.T) {
	fb := newFakeBackend(t)
	w := newTestWorkspace(t, fb, testOptions{})
	ctx := context.Background()
	signIn(t, w, fb)

	ds, err := w.Sources.Update(ctx, "s2", backend.SourceInput{SourceType: backend.SourceJira, DisplayName: "Platform Jira", IsActive: false})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if ds.IsActive {
		t.Error("expected source deactivated")
	}
	if w.Sources.IsSelected("s2") {
		t.Error("deactivated source must leave the selection")
	}

	ok, err := w.Sources.TestConnection(ctx, "s1")
	if err != nil || !ok {
		t.Errorf("expected s1 reachable, got (%v, %v)", ok, err)
	}
	ok, err = w.Sources.TestConnection(ctx, "s3")
	if err != nil || ok {
		t.Errorf("expected s3 unreachable, got (%v, %v)", ok, err)
	}
}

func TestSources_SyncHistory(t *testing.T) {
	fb := newFakeBackend(t)
	fb.history["s1"] = []backend.SyncHistoryEntry{
		{ID: "h2", SyncStatus: backend.SyncCompleted, DocumentsProcessed: 12},
		{ID: "h1", SyncStatus: backend.SyncFailed},
	}
	w := newTestWorkspace(t, fb, testOptions{})
	signIn(t, w, fb)

	history, err := w.Sources.SyncHistory(context.Background(), "s1")
	if err != nil {
		t.Fatalf("SyncHistory: %v", err)
	}
	if len(history) != 2 || history[0].ID != "h2" {
		t.Errorf("expected newest first, got %+v", history)
	}
}
