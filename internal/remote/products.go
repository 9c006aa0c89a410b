package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"petpos/terminal/internal/domain"
)

// RawProduct is the loose over-the-wire product shape. Depending on origin
// and API version the same concept arrives under different keys (name vs
// nombre, price vs precio), stock may be a number or a legacy annotated
// string ("15 unidades"), and the image may be a URL or inline base64.
// Normalization onto the canonical domain.Product lives in the catalog
// package; nothing else in the terminal touches these alias fields.
type RawProduct struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Nombre       string          `json:"nombre"`
	Description  string          `json:"description"`
	Price        json.Number     `json:"price"`
	Precio       json.Number     `json:"precio"`
	Cost         json.Number     `json:"cost"`
	Stock        json.RawMessage `json:"stock"`
	UnidadMedida string          `json:"unidad_medida"`
	Barcode      string          `json:"barcode"`
	CategoryID   int64           `json:"category_id"`
	ImageURL     string          `json:"image_url"`
	ImageBase64  *string         `json:"image_base64"`
	IsActive     *bool           `json:"is_active"`
}

type ProductQuery struct {
	Search     string
	CategoryID int64
	ActiveOnly bool
	Skip       int
	Limit      int
}

func (c *Client) ListProducts(ctx context.Context, token string, q ProductQuery) ([]RawProduct, error) {
	req := c.request(token).SetContext(ctx)
	if q.Search != "" {
		req.SetQueryParam("search", q.Search)
	}
	if q.CategoryID > 0 {
		req.SetQueryParam("category_id", strconv.FormatInt(q.CategoryID, 10))
	}
	if q.ActiveOnly {
		req.SetQueryParam("is_active", "true")
	}
	if q.Skip > 0 {
		req.SetQueryParam("skip", strconv.Itoa(q.Skip))
	}
	if q.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(q.Limit))
	}

	var out []RawProduct
	resp, err := req.SetResult(&out).Get("/products")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, asError(resp)
	}
	return out, nil
}

func (c *Client) CreateProduct(ctx context.Context, token string, req domain.ProductCreateRequest) (RawProduct, error) {
	var out RawProduct
	resp, err := c.request(token).
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/products")
	if err != nil {
		return RawProduct{}, err
	}
	if resp.IsError() {
		return RawProduct{}, asError(resp)
	}
	return out, nil
}

func (c *Client) UpdateProduct(ctx context.Context, token string, id int64, req domain.ProductUpdateRequest) (RawProduct, error) {
	var out RawProduct
	resp, err := c.request(token).
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Put(fmt.Sprintf("/products/%d", id))
	if err != nil {
		return RawProduct{}, err
	}
	if resp.IsError() {
		return RawProduct{}, asError(resp)
	}
	return out, nil
}

func (c *Client) DeleteProduct(ctx context.Context, token string, id int64) error {
	resp, err := c.request(token).
		SetContext(ctx).
		Delete(fmt.Sprintf("/products/%d", id))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return asError(resp)
	}
	return nil
}

func (c *Client) ListCategories(ctx context.Context, token string) ([]domain.Category, error) {
	var out []domain.Category
	resp, err := c.request(token).
		SetContext(ctx).
		SetResult(&out).
		Get("/categories")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, asError(resp)
	}
	return out, nil
}

func (c *Client) CreateCategory(ctx context.Context, token string, req domain.CategoryCreateRequest) (domain.Category, error) {
	var out domain.Category
	resp, err := c.request(token).
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post("/categories")
	if err != nil {
		return domain.Category{}, err
	}
	if resp.IsError() {
		return domain.Category{}, asError(resp)
	}
	return out, nil
}
