package workspace

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/MikeSquared-Agency/oracle/internal/backend"
)

// Teams caches the team list for the signed-in user.
type Teams struct {
	client *backend.Client
	logger *slog.Logger

	mu    sync.Mutex
	teams []backend.Team
	gen   uint64
}

func newTeams(client *backend.Client, logger *slog.Logger) *Teams {
	return &Teams{client: client, logger: logger}
}

func (t *Teams) List(ctx context.Context) ([]backend.Team, error) {
	t.mu.Lock()
	gen := t.gen
	t.mu.Unlock()

	teams, err := t.client.ListTeams(ctx)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return nil, ErrNotAuthenticated
	}
	t.teams = teams
	return append([]backend.Team(nil), teams...), nil
}

func (t *Teams) Teams() []backend.Team {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]backend.Team(nil), t.teams...)
}

func (t *Teams) Lookup(id backend.ID) (backend.Team, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, team := range t.teams {
		if team.ID == id {
			return team, true
		}
	}
	return backend.Team{}, false
}

func (t *Teams) Create(ctx context.Context, in backend.TeamInput) (*backend.Team, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Description = strings.TrimSpace(in.Description)
	if in.Name == "" {
		return nil, invalid("name", "required")
	}
	if in.DisplayName == "" {
		return nil, invalid("display_name", "required")
	}

	team, err := t.client.CreateTeam(ctx, in)
	if err != nil {
		return nil, err
	}
	t.refresh(ctx)
	return team, nil
}

func (t *Teams) Detail(ctx context.Context, id backend.ID) (*backend.TeamDetail, error) {
	return t.client.GetTeam(ctx, id)
}

func (t *Teams) Update(ctx context.Context, id backend.ID, in backend.TeamInput) (*backend.Team, error) {
	in.Name = ""
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Description = strings.TrimSpace(in.Description)
	if in.DisplayName == "" && in.Description == "" {
		return nil, invalid("team", "nothing to update")
	}
	team, err := t.client.UpdateTeam(ctx, id, in)
	if err != nil {
		return nil, err
	}
	t.refresh(ctx)
	return team, nil
}

func (t *Teams) Delete(ctx context.Context, id backend.ID) error {
	if err := t.client.DeleteTeam(ctx, id); err != nil {
		return err
	}
	t.refresh(ctx)
	return nil
}

func (t *Teams) Invite(ctx context.Context, teamID backend.ID, email string, role backend.Role) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email", "required")
	}
	if !role.Valid() {
		return invalid("role", "must be owner, admin or member")
	}
	return t.client.InviteMember(ctx, teamID, email, role)
}

func (t *Teams) RemoveMember(ctx context.Context, teamID, memberID backend.ID) error {
	return t.client.RemoveMember(ctx, teamID, memberID)
}

func (t *Teams) UpdateMemberRole(ctx context.Context, teamID, memberID backend.ID, role backend.Role) error {
	if !role.Valid() {
		return invalid("role", "must be owner, admin or member")
	}
	return t.client.UpdateMemberRole(ctx, teamID, memberID, role)
}

// CanManage gates member management in the UI; the service enforces it.
func CanManage(detail *backend.TeamDetail, userID backend.ID) bool {
	if detail == nil {
		return false
	}
	return detail.RoleOf(userID).CanManage()
}

func (t *Teams) refresh(ctx context.Context) {
	if _, err := t.List(ctx); err != nil {
		t.logger.Warn("failed to refresh teams", "error", err)
	}
}

func (t *Teams) reset() {
	t.mu.Lock()
	t.teams = nil
	t.gen++
	t.mu.Unlock()
}
