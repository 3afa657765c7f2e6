package apiclient

import (
	"context"
	"net/http"
)

// GetJSON fetches path and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodGet, Path: path}, out)
}

// PostJSON sends in and decodes the answer into out when out is non-nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodPost, Path: path, Body: in}, out)
}

func (c *Client) PutJSON(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, &Request{Method: http.MethodPut, Path: path, Body: in}, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, &Request{Method: http.MethodDelete, Path: path}, nil)
}

func (c *Client) doJSON(ctx context.Context, req *Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}
