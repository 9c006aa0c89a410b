package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	// ErrStockConflict is the remote sales service rejecting a sale because
	// authoritative stock no longer covers it. The local cart is left intact
	// so the operator can refresh the catalog, adjust, and retry.
	ErrStockConflict = errors.New("insufficient stock")
)

// APIError is any other remote rejection, carrying the FastAPI-style detail
// message from the response body.
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote api: %s (status %d)", e.Detail, e.Status)
}

type errorBody struct {
	Detail string `json:"detail"`
}

// asError maps an error HTTP response onto the client error taxonomy.
func asError(resp *resty.Response) error {
	var body errorBody
	detail := "unknown error"
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Detail != "" {
		detail = body.Detail
	}

	status := resp.StatusCode()
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: %s", ErrUnauthorized, detail)
	case status == 409,
		(status == 400 || status == 422) && strings.Contains(strings.ToLower(detail), "stock"):
		return fmt.Errorf("%w: %s", ErrStockConflict, detail)
	default:
		return &APIError{Status: status, Detail: detail}
	}
}
