package backend

import (
	"context"
	"fmt"
	"net/http"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Login exchanges credentials for a bearer token. It does not install the
// token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" {
		return "", &ValidationError{Field: "username", Reason: "required"}
	}
	if password == "" {
		return "", &ValidationError{Field: "password", Reason: "required"}
	}

	var resp tokenResponse
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   map[string]string{"username": username, "password": password},
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &TransportError{Op: "decode /auth/login", Err: fmt.Errorf("empty access token")}
	}
	return resp.AccessToken, nil
}

func (c *Client) Register(ctx context.Context, reg Registration) (*User, error) {
	switch {
	case reg.Username == "":
		return nil, &ValidationError{Field: "username", Reason: "required"}
	case reg.Email == "":
		return nil, &ValidationError{Field: "email", Reason: "required"}
	case reg.Password == "":
		return nil, &ValidationError{Field: "password", Reason: "required"}
	}

	var user User
	if err := c.do(ctx, call{method: http.MethodPost, path: "/auth/register", body: reg}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, call{method: http.MethodGet, path: "/auth/me", authed: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*User, error) {
	var user User
	if err := c.do(ctx, call{method: http.MethodPut, path: "/auth/profile", body: upd, authed: true}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
