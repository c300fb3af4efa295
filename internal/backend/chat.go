package backend

import (
	"context"
	"net/http"
)

// DefaultModel is used when the service does not report a model list.
const DefaultModel = "llama3.2"

func (c *Client) Query(ctx context.Context, q QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.do(ctx, call{method: http.MethodPost, path: "/chat/query", body: q, authed: true}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Models(ctx context.Context) ([]Model, error) {
	var resp struct {
		Models []Model `json:"models"`
	}
	if err := c.do(ctx, call{method: http.MethodGet, path: "/models", authed: true}, &resp); err != nil {
		return nil, err
	}
	return resp.Models, nil
}
