// Package remote is the client for the shop's REST API, which owns all
// persistent business state: users, the product catalog, and the sales
// ledger. This terminal only mirrors and submits; it never writes state the
// API does not confirm.
package remote

import (
	"time"

	"github.com/go-resty/resty/v2"
)

type Client struct {
	http *resty.Client
}

// New builds a client for the remote API. terminalID is sent with every
// request so the shop API can attribute traffic to a physical terminal.
func New(baseURL string, timeout time.Duration, terminalID string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if terminalID != "" {
		httpClient.SetHeader("X-Terminal-ID", terminalID)
	}
	return &Client{http: httpClient}
}

func (c *Client) request(token string) *resty.Request {
	req := c.http.R()
	if token != "" {
		req.SetAuthToken(token)
	}
	return req
}
