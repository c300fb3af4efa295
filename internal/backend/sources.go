package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// HistoryLimit is the page size the service uses for sync history.
const HistoryLimit = 20

// sourcesPath addresses the personal collection when teamID is empty.
func sourcesPath(teamID ID) string {
	if teamID == "" {
		return "/data-sources"
	}
	return pathf("/teams/%s/data-sources", teamID)
}

func (c *Client) ListSources(ctx context.Context, teamID ID) ([]DataSource, error) {
	var sources []DataSource
	if err := c.do(ctx, call{method: http.MethodGet, path: sourcesPath(teamID), authed: true}, &sources); err != nil {
		return nil, err
	}
	return sources, nil
}

func (c *Client) CreateSource(ctx context.Context, teamID ID, in SourceInput) (*DataSource, error) {
	var ds DataSource
	if err := c.do(ctx, call{method: http.MethodPost, path: sourcesPath(teamID), body: in, authed: true}, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (c *Client) UpdateSource(ctx context.Context, id ID, in SourceInput) (*DataSource, error) {
	var ds DataSource
	if err := c.do(ctx, call{method: http.MethodPut, path: pathf("/data-sources/%s", id), body: in, authed: true}, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (c *Client) DeleteSource(ctx context.Context, id ID) error {
	return c.do(ctx, call{method: http.MethodDelete, path: pathf("/data-sources/%s", id), authed: true}, nil)
}

// TriggerSync starts a synchronization and returns the service's
// acknowledgement text.
func (c *Client) TriggerSync(ctx context.Context, id ID) (string, error) {
	var resp messageResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: pathf("/data-sources/%s/sync", id), authed: true}, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

func (c *Client) TestConnection(ctx context.Context, id ID) (bool, error) {
	var resp struct {
		Connected bool `json:"connected"`
	}
	if err := c.do(ctx, call{method: http.MethodPost, path: pathf("/data-sources/%s/test", id), authed: true}, &resp); err != nil {
		return false, err
	}
	return resp.Connected, nil
}

// SyncHistory returns up to limit entries, newest first. limit <= 0 uses
// the service default.
func (c *Client) SyncHistory(ctx context.Context, id ID, limit int) ([]SyncHistoryEntry, error) {
	var q url.Values
	if limit > 0 {
		q = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var entries []SyncHistoryEntry
	if err := c.do(ctx, call{method: http.MethodGet, path: pathf("/data-sources/%s/sync-history", id), query: q, authed: true}, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
