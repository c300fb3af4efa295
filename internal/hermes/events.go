package hermes

import (
	"encoding/json"
	"fmt"
	"time"
)

// Workspace lifecycle subjects published by oracle.
const (
	SubjectSignedIn       = "oracle.workspace.signed_in"
	SubjectSignedOut      = "oracle.workspace.signed_out"
	SubjectContextChanged = "oracle.workspace.context.changed"
	SubjectSyncStatus     = "oracle.workspace.sync.status"
	SubjectQueryCompleted = "oracle.workspace.query.completed"
	SubjectQueryFailed    = "oracle.workspace.query.failed"
)

// SubjectSourceSynced is published by the connector service when a
// synchronization run finishes. serve mode re-polls that source at once
// instead of waiting for the next tick.
const SubjectSourceSynced = "swarm.connector.source.synced"

type SignedInEvent struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

type SignedOutEvent struct {
	Username  string    `json:"username,omitempty"`
	Forced    bool      `json:"forced"`
	Timestamp time.Time `json:"timestamp"`
}

type ContextChangedEvent struct {
	Context   string    `json:"context"`
	TeamID    string    `json:"team_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SyncStatusEvent struct {
	SourceID           string    `json:"source_id"`
	Status             string    `json:"status"`
	DocumentsProcessed int       `json:"documents_processed"`
	ErrorMessage       string    `json:"error_message,omitempty"`
	StartedAt          time.Time `json:"started_at"`
}

type QueryEvent struct {
	RequestID      string    `json:"request_id"`
	SessionID      string    `json:"session_id,omitempty"`
	Model          string    `json:"model"`
	ResponseType   string    `json:"response_type"`
	SourceCount    int       `json:"source_count"`
	CitationCount  int       `json:"citation_count"`
	ProcessingTime float64   `json:"processing_time,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type SourceSyncedEvent struct {
	SourceID string `json:"source_id"`
	Status   string `json:"status,omitempty"`
}

// ParseSourceSynced accepts the source id as a string or a number.
func ParseSourceSynced(data []byte) (SourceSyncedEvent, error) {
	var raw struct {
		SourceID json.RawMessage `json:"source_id"`
		Status   string          `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return SourceSyncedEvent{}, fmt.Errorf("decode source synced: %w", err)
	}
	ev := SourceSyncedEvent{Status: raw.Status}
	var s string
	if err := json.Unmarshal(raw.SourceID, &s); err == nil {
		ev.SourceID = s
	} else {
		var n json.Number
		if err := json.Unmarshal(raw.SourceID, &n); err != nil {
			return SourceSyncedEvent{}, fmt.Errorf("decode source id: %w", err)
		}
		ev.SourceID = n.String()
	}
	if ev.SourceID == "" {
		return SourceSyncedEvent{}, fmt.Errorf("decode source synced: missing source_id")
	}
	return ev, nil
}
