package remote

import (
	"context"

	"petpos/terminal/internal/domain"
)

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	var out domain.LoginResponse
	resp, err := c.request("").
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/auth/login")
	if err != nil {
		return domain.LoginResponse{}, err
	}
	if resp.IsError() {
		return domain.LoginResponse{}, asError(resp)
	}
	return out, nil
}

// Me resolves the operator identity behind a bearer token.
func (c *Client) Me(ctx context.Context, token string) (domain.Operator, error) {
	var out domain.Operator
	resp, err := c.request(token).
		SetContext(ctx).
		SetResult(&out).
		Get("/auth/me")
	if err != nil {
		return domain.Operator{}, err
	}
	if resp.IsError() {
		return domain.Operator{}, asError(resp)
	}
	return out, nil
}
