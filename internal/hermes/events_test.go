package hermes

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseSourceSynced_StringAndNumericIDs(t *testing.T) {
	cases := map[string]string{
		`{"source_id": "s1", "status": "completed"}`: "s1",
		`{"source_id": 17, "status": "success"}`:     "17",
	}
	for raw, want := range cases {
		ev, err := ParseSourceSynced([]byte(raw))
		if err != nil {
			t.Fatalf("failed to parse %s: %v", raw, err)
		}
		if ev.SourceID != want {
			t.Errorf("expected source id %q, got %q", want, ev.SourceID)
		}
	}
}

func TestParseSourceSynced_Invalid(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"source_id": ""}`, `{"source_id": true}`} {
		if _, err := ParseSourceSynced([]byte(raw)); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestQueryEvent_OmitsEmptyError(t *testing.T) {
	ev := QueryEvent{
		RequestID:      "req-1",
		SessionID:      "3",
		Model:          "llama3.2",
		ResponseType:   "concise",
		SourceCount:    2,
		CitationCount:  3,
		ProcessingTime: 1.25,
		Timestamp:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), `"error"`) {
		t.Errorf("expected no error field, got %s", data)
	}
	if !strings.Contains(string(data), `"request_id":"req-1"`) {
		t.Errorf("expected request id, got %s", data)
	}
}

func TestSubjectsAreNamespaced(t *testing.T) {
	for _, s := range []string{SubjectSignedIn, SubjectSignedOut, SubjectContextChanged, SubjectSyncStatus, SubjectQueryCompleted, SubjectQueryFailed} {
		if !strings.HasPrefix(s, "oracle.workspace.") {
			t.Errorf("subject %q is outside the oracle.workspace namespace", s)
		}
	}
}
