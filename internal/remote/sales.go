package remote

import (
	"context"
	"strconv"

	"petpos/terminal/internal/domain"
)

// CreateSale submits one sale as a single atomic request. The remote service
// validates stock authoritatively and either commits the whole sale or
// rejects it; there is no partial submission.
func (c *Client) CreateSale(ctx context.Context, token string, req domain.SaleCreateRequest) (domain.SaleRecord, error) {
	var out domain.SaleRecord
	resp, err := c.request(token).
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/sales")
	if err != nil {
		return domain.SaleRecord{}, err
	}
	if resp.IsError() {
		return domain.SaleRecord{}, asError(resp)
	}
	return out, nil
}

type SaleQuery struct {
	Today     bool
	StartDate string
	EndDate   string
	Skip      int
	Limit     int
}

func (c *Client) ListSales(ctx context.Context, token string, q SaleQuery) ([]domain.SaleRecord, error) {
	req := c.request(token).SetContext(ctx)
	if q.Today {
		req.SetQueryParam("today", "true")
	}
	if q.StartDate != "" {
		req.SetQueryParam("start_date", q.StartDate)
	}
	if q.EndDate != "" {
		req.SetQueryParam("end_date", q.EndDate)
	}
	if q.Skip > 0 {
		req.SetQueryParam("skip", strconv.Itoa(q.Skip))
	}
	if q.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(q.Limit))
	}

	var out []domain.SaleRecord
	resp, err := req.SetResult(&out).Get("/sales")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, asError(resp)
	}
	return out, nil
}
