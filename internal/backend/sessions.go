package backend

import (
	"context"
	"net/http"
	"net/url"
)

// DefaultSessionTitle is what the service names a session created without
// a title.
const DefaultSessionTitle = "New Chat"

func (c *Client) ListSessions(ctx context.Context) ([]ChatSession, error) {
	var sessions []ChatSession
	if err := c.do(ctx, call{method: http.MethodGet, path: "/chat/sessions", authed: true}, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *Client) CreateSession(ctx context.Context, title string) (*ChatSession, error) {
	if title == "" {
		title = DefaultSessionTitle
	}
	var session ChatSession
	body := map[string]string{"title": title}
	if err := c.do(ctx, call{method: http.MethodPost, path: "/chat/sessions", body: body, authed: true}, &session); err != nil {
		return nil, err
	}
	if session.Title == "" {
		session.Title = title
	}
	return &session, nil
}

// RenameSession sends the title both as a query parameter and in the body;
// service versions differ in which one they read.
func (c *Client) RenameSession(ctx context.Context, id ID, title string) error {
	return c.do(ctx, call{
		method: http.MethodPut,
		path:   pathf("/chat/sessions/%s", id),
		query:  url.Values{"title": {title}},
		body:   map[string]string{"title": title},
		authed: true,
	}, nil)
}

func (c *Client) DeleteSession(ctx context.Context, id ID) error {
	return c.do(ctx, call{method: http.MethodDelete, path: pathf("/chat/sessions/%s", id), authed: true}, nil)
}

func (c *Client) SessionMessages(ctx context.Context, id ID) ([]Message, error) {
	var messages []Message
	if err := c.do(ctx, call{method: http.MethodGet, path: pathf("/chat/sessions/%s/messages", id), authed: true}, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}
