package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrForbidden marks a 403: the token is fine but the user may not do
	// this. It never signs anyone out.
	ErrForbidden = errors.New("forbidden")
	// ErrNoToken is returned when an authenticated call is attempted without
	// a bearer token. No request is sent.
	ErrNoToken = errors.New("not signed in")
)

// AuthError is a 401 from the service: the token was rejected. It forces
// sign-out; nothing else cascades.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("unauthorized (%d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("unauthorized (%d)", e.Status)
}

// ValidationError is raised before dispatch when a required field is
// missing or out of range.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// APIError carries a non-auth error status and the service's detail text.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("api error %d", e.Status)
}

func (e *APIError) IsNotFound() bool  { return e.Status == http.StatusNotFound }
func (e *APIError) IsConflict() bool  { return e.Status == http.StatusConflict }
func (e *APIError) IsForbidden() bool { return e.Status == http.StatusForbidden }

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.IsNotFound()
	case ErrConflict:
		return e.IsConflict()
	case ErrForbidden:
		return e.IsForbidden()
	}
	return false
}

// TransportError covers everything where no usable response arrived:
// connection failures, timeouts, unreadable or unparseable bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsAuth reports whether err is a rejected-credential error.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Detail extracts the human-readable reason from any error in the taxonomy.
func Detail(err error) string {
	var api *APIError
	if errors.As(err, &api) {
		return api.Error()
	}
	var auth *AuthError
	if errors.As(err, &auth) && auth.Detail != "" {
		return auth.Detail
	}
	return err.Error()
}

func errorFromResponse(status int, body []byte) error {
	detail := parseDetail(body)
	if status == http.StatusUnauthorized {
		return &AuthError{Status: status, Detail: detail}
	}
	return &APIError{Status: status, Detail: detail}
}

// parseDetail reads {detail}, {error} or {message}. FastAPI validation
// failures send detail as a list of objects; their msg fields are joined.
func parseDetail(body []byte) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Error   string          `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return strings.TrimSpace(string(body))
	}
	if len(payload.Detail) > 0 {
		var s string
		if json.Unmarshal(payload.Detail, &s) == nil {
			return s
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil {
			msgs := make([]string, 0, len(items))
			for _, it := range items {
				if it.Msg != "" {
					msgs = append(msgs, it.Msg)
				}
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
