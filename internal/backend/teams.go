package backend

import (
	"context"
	"net/http"
)

func (c *Client) ListTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.do(ctx, call{method: http.MethodGet, path: "/teams", authed: true}, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

func (c *Client) CreateTeam(ctx context.Context, in TeamInput) (*Team, error) {
	var team Team
	if err := c.do(ctx, call{method: http.MethodPost, path: "/teams", body: in, authed: true}, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

func (c *Client) GetTeam(ctx context.Context, id ID) (*TeamDetail, error) {
	var detail TeamDetail
	if err := c.do(ctx, call{method: http.MethodGet, path: pathf("/teams/%s", id), authed: true}, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

func (c *Client) UpdateTeam(ctx context.Context, id ID, in TeamInput) (*Team, error) {
	var team Team
	if err := c.do(ctx, call{method: http.MethodPut, path: pathf("/teams/%s", id), body: in, authed: true}, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

func (c *Client) DeleteTeam(ctx context.Context, id ID) error {
	return c.do(ctx, call{method: http.MethodDelete, path: pathf("/teams/%s", id), authed: true}, nil)
}

func (c *Client) InviteMember(ctx context.Context, teamID ID, email string, role Role) error {
	body := map[string]string{"email": email, "role": string(role)}
	return c.do(ctx, call{method: http.MethodPost, path: pathf("/teams/%s/invite", teamID), body: body, authed: true}, nil)
}

func (c *Client) RemoveMember(ctx context.Context, teamID, memberID ID) error {
	return c.do(ctx, call{method: http.MethodDelete, path: pathf("/teams/%s/members/%s", teamID, memberID), authed: true}, nil)
}

func (c *Client) UpdateMemberRole(ctx context.Context, teamID, memberID ID, role Role) error {
	body := map[string]string{"role": string(role)}
	return c.do(ctx, call{method: http.MethodPut, path: pathf("/teams/%s/members/%s/role", teamID, memberID), body: body, authed: true}, nil)
}
