package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricingMode is how a product is sold: per discrete unit at a fixed price,
// or by weight, where the operator enters a money amount and the weight sold
// is derived from the per-kg price.
type PricingMode string

const (
	ModeByUnit   PricingMode = "unidad"
	ModeByWeight PricingMode = "kg"
)

// Product is the canonical, normalized snapshot of a remotely owned product.
// The remote catalog is authoritative; this struct is never written back.
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       decimal.Decimal `json:"stock"`
	Mode        PricingMode     `json:"unidad_medida"`
	Barcode     string          `json:"barcode,omitempty"`
	CategoryID  int64           `json:"category_id"`
	ImageRef    string          `json:"image_ref,omitempty"`
	Active      bool            `json:"is_active"`
}

type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Cost         decimal.Decimal `json:"cost,omitempty"`
	Stock        decimal.Decimal `json:"stock,omitempty"`
	UnidadMedida string          `json:"unidad_medida,omitempty"`
	Barcode      string          `json:"barcode,omitempty"`
	CategoryID   int64           `json:"category_id"`
	ImageURL     string          `json:"image_url,omitempty"`
}

type ProductUpdateRequest struct {
	Name         *string          `json:"name,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Cost         *decimal.Decimal `json:"cost,omitempty"`
	Stock        *decimal.Decimal `json:"stock,omitempty"`
	UnidadMedida *string          `json:"unidad_medida,omitempty"`
	Barcode      *string          `json:"barcode,omitempty"`
	CategoryID   *int64           `json:"category_id,omitempty"`
	ImageURL     *string          `json:"image_url,omitempty"`
	Active       *bool            `json:"is_active,omitempty"`
}

type CategoryCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// PaymentMethod is the rail a sale is paid over. Cash is the only method with
// a tendered amount and change due; the mobile wallet rails settle externally.
type PaymentMethod string

const (
	PaymentCash      PaymentMethod = "efectivo"
	PaymentNequi     PaymentMethod = "nequi"
	PaymentDaviplata PaymentMethod = "daviplata"
)

// SupportedPaymentMethods lists the accepted rails in display order.
func SupportedPaymentMethods() []PaymentMethod {
	return []PaymentMethod{PaymentCash, PaymentNequi, PaymentDaviplata}
}

func IsSupportedPaymentMethod(method PaymentMethod) bool {
	switch method {
	case PaymentCash, PaymentNequi, PaymentDaviplata:
		return true
	}
	return false
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// Operator is the authenticated cashier identity, resolved from the remote
// auth service. Its username keys the durable per-operator cart storage.
type Operator struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	Active   bool   `json:"is_active"`
}

// SaleItem is one line of the sale-creation request sent to the remote sales
// service. For weight-priced lines Price is the adjusted per-kg price rather
// than the product's nominal price, so that Quantity*Price reconstructed
// server-side reproduces the tendered amount despite quantity rounding.
type SaleItem struct {
	ProductID int64           `json:"product_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type SaleCreateRequest struct {
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Items         []SaleItem      `json:"items"`
	CustomerName  string          `json:"customer_name,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Discount      decimal.Decimal `json:"discount,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

type SaleRecordItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type SaleUser struct {
	FullName string `json:"full_name"`
}

type SaleRecord struct {
	ID            int64            `json:"id"`
	CreatedAt     time.Time        `json:"created_at"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	Total         decimal.Decimal  `json:"total"`
	User          *SaleUser        `json:"user,omitempty"`
	Items         []SaleRecordItem `json:"items,omitempty"`
}
