package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is an opaque identifier. The service sends numeric ids; strings are
// accepted too so callers never depend on the representation.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON writes numeric ids back as JSON numbers. Only the canonical
// decimal form is unquoted; "007" or "+5" stay strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func (id ID) String() string { return string(id) }

type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// CanManage reports whether the role may invite and remove members.
func (r Role) CanManage() bool {
	return r == RoleOwner || r == RoleAdmin
}

type SyncStatus string

const (
	SyncPending    SyncStatus = "pending"
	SyncInProgress SyncStatus = "in_progress"
	SyncCompleted  SyncStatus = "completed"
	SyncFailed     SyncStatus = "failed"
)

func (s SyncStatus) Valid() bool {
	switch s {
	case SyncPending, SyncInProgress, SyncCompleted, SyncFailed:
		return true
	}
	return false
}

// Terminal reports whether no further progress is expected for the attempt.
func (s SyncStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncFailed
}

func (s *SyncStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode sync status: %w", err)
	}
	switch raw {
	case "running":
		*s = SyncInProgress
	case "success":
		*s = SyncCompleted
	case "error":
		*s = SyncFailed
	default:
		*s = SyncStatus(raw)
	}
	return nil
}

type MessageType string

const (
	MessageUser      MessageType = "user"
	MessageAssistant MessageType = "assistant"
	MessageError     MessageType = "error"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageUser, MessageAssistant, MessageError:
		return true
	}
	return false
}

type SourceType string

const (
	SourceConfluence SourceType = "confluence"
	SourceJira       SourceType = "jira"
	SourceBitbucket  SourceType = "bitbucket"
)

type ResponseType string

const (
	ResponseBrief     ResponseType = "brief"
	ResponseConcise   ResponseType = "concise"
	ResponseExpansive ResponseType = "expansive"
)

func (r ResponseType) Valid() bool {
	switch r {
	case ResponseBrief, ResponseConcise, ResponseExpansive:
		return true
	}
	return false
}

type User struct {
	ID        ID        `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Team struct {
	ID              ID     `json:"id"`
	Name            string `json:"name"`
	DisplayName     string `json:"display_name"`
	Description     string `json:"description,omitempty"`
	MemberCount     int    `json:"member_count"`
	DataSourceCount int    `json:"data_source_count"`
}

type Member struct {
	ID       ID     `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

type TeamDetail struct {
	Team
	Members []Member `json:"members"`
}

// RoleOf returns the role held by userID, or "" if not a member.
func (d *TeamDetail) RoleOf(userID ID) Role {
	for _, m := range d.Members {
		if m.ID == userID {
			return m.Role
		}
	}
	return ""
}

type DataSource struct {
	ID            ID          `json:"id"`
	DisplayName   string      `json:"display_name"`
	SourceType    SourceType  `json:"source_type"`
	IsActive      bool        `json:"is_active"`
	LastSync      *time.Time  `json:"last_sync,omitempty"`
	DocumentCount *int        `json:"document_count,omitempty"`
	SyncStatus    *SyncStatus `json:"sync_status,omitempty"`
}

// SourceInput is the create/update body. Credentials are write-only and
// never come back from the service.
type SourceInput struct {
	SourceType  SourceType        `json:"source_type"`
	DisplayName string            `json:"display_name"`
	IsActive    bool              `json:"is_active"`
	Credentials map[string]string `json:"credentials,omitempty"`
}

type SyncHistoryEntry struct {
	ID                 ID         `json:"id"`
	SyncStrategy       string     `json:"sync_strategy,omitempty"`
	SyncStatus         SyncStatus `json:"sync_status"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	DocumentsProcessed int        `json:"documents_processed"`
	DocumentsAdded     int        `json:"documents_added"`
	DocumentsUpdated   int        `json:"documents_updated"`
	DocumentsDeleted   int        `json:"documents_deleted"`
	ProcessingTime     *float64   `json:"processing_time,omitempty"`
	ErrorMessage       string     `json:"error_message,omitempty"`
	NextSyncAt         *time.Time `json:"next_sync_at,omitempty"`
}

type ChatSession struct {
	ID           ID        `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type SourceCitation struct {
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	Snippet    string     `json:"snippet,omitempty"`
	SourceType SourceType `json:"source_type"`
	Confidence float64    `json:"confidence"`
}

// Citations decodes the three shapes the history endpoint uses for sources:
// a plain array, an object wrapping the array, or a JSON-encoded string of
// either.
type Citations []SourceCitation

func (c *Citations) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = nil
		return nil
	}
	switch data[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("decode citations: %w", err)
		}
		if inner == "" {
			*c = nil
			return nil
		}
		return c.UnmarshalJSON([]byte(inner))
	case '{':
		var wrapped struct {
			Sources []SourceCitation `json:"sources"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return fmt.Errorf("decode citations: %w", err)
		}
		*c = wrapped.Sources
		return nil
	default:
		var list []SourceCitation
		if err := json.Unmarshal(data, &list); err != nil {
			return fmt.Errorf("decode citations: %w", err)
		}
		*c = list
		return nil
	}
}

type Message struct {
	ID             ID          `json:"id"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	Sources        Citations   `json:"sources,omitempty"`
	ProcessingTime *float64    `json:"processing_time,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}

type QueryRequest struct {
	Query        string       `json:"query"`
	SourceIDs    []ID         `json:"sourceIds"`
	ResponseType ResponseType `json:"responseType"`
	Temperature  float64      `json:"temperature"`
	SessionID    ID           `json:"sessionId,omitempty"`
	Model        string       `json:"model"`
}

type QueryResponse struct {
	Response       string    `json:"response"`
	Sources        Citations `json:"sources"`
	ProcessingTime float64   `json:"processing_time"`
}

func (r *QueryResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Response       string    `json:"response"`
		Answer         string    `json:"answer"`
		Sources        Citations `json:"sources"`
		ProcessingTime float64   `json:"processing_time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Response = raw.Response
	if r.Response == "" {
		r.Response = raw.Answer
	}
	r.Sources = raw.Sources
	r.ProcessingTime = raw.ProcessingTime
	return nil
}

type Model struct {
	Name     string `json:"name"`
	Size     int64  `json:"size,omitempty"`
	Modified string `json:"modified,omitempty"`
}

type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name,omitempty"`
}

type ProfileUpdate struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password,omitempty"`
}

type TeamInput struct {
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Description string `json:"description,omitempty"`
}
