package workspace

import (
	"strings"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

// Scope is the active context: the personal account or one team. The zero
// value is Personal.
type Scope struct {
	teamID backend.ID
}

var Personal = Scope{}

func Team(id backend.ID) Scope {
	return Scope{teamID: id}
}

// ParseScope reads "personal", "" or "team:<id>". A bare id is taken as a
// team id.
func ParseScope(s string) Scope {
	s = strings.TrimSpace(s)
	if s == "" || s == "personal" {
		return Personal
	}
	return Team(backend.ID(strings.TrimPrefix(s, "team:")))
}

func (s Scope) IsPersonal() bool   { return s.teamID == "" }
func (s Scope) TeamID() backend.ID { return s.teamID }

func (s Scope) String() string {
	if s.IsPersonal() {
		return "personal"
	}
	return "team:" + string(s.teamID)
}
