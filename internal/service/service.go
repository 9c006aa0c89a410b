// Package service wires the cart engine, the catalog snapshot, durable cart
// storage and the remote shop API into the operations the terminal exposes.
// Every operation runs on behalf of the operator carried in the context.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/shopspring/decimal"

	"petpos/terminal/internal/cart"
	"petpos/terminal/internal/cartstore"
	"petpos/terminal/internal/catalog"
	"petpos/terminal/internal/domain"
	"petpos/terminal/internal/pricing"
	"petpos/terminal/internal/remote"
)

var (
	ErrNoSession          = errors.New("no operator session")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrSubmissionInFlight = errors.New("a sale submission is already in progress")
	// ErrAmountPending means a weight-priced line is still waiting for its
	// money amount; the sale cannot be priced until it is entered or removed.
	ErrAmountPending      = errors.New("weight-priced line has no amount entered")
	ErrUnsupportedPayment = errors.New("unsupported payment method")
	ErrUnknownProduct     = errors.New("product not in catalog")
)

// RemoteAPI is the slice of the remote client the service depends on.
type RemoteAPI interface {
	ListProducts(ctx context.Context, token string, q remote.ProductQuery) ([]remote.RawProduct, error)
	CreateProduct(ctx context.Context, token string, req domain.ProductCreateRequest) (remote.RawProduct, error)
	UpdateProduct(ctx context.Context, token string, id int64, req domain.ProductUpdateRequest) (remote.RawProduct, error)
	DeleteProduct(ctx context.Context, token string, id int64) error
	ListCategories(ctx context.Context, token string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, token string, req domain.CategoryCreateRequest) (domain.Category, error)
	CreateSale(ctx context.Context, token string, req domain.SaleCreateRequest) (domain.SaleRecord, error)
	ListSales(ctx context.Context, token string, q remote.SaleQuery) ([]domain.SaleRecord, error)
}

// Session identifies who is operating the terminal and the bearer token used
// for calls made on their behalf.
type Session struct {
	Operator domain.Operator
	Token    string
}

type sessionKey struct{}

// WithSession attaches the authenticated operator to the context.
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, sess)
}

// SessionFromContext returns the operator session, if any.
func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(sessionKey{}).(Session)
	return sess, ok
}

type Service struct {
	remote   RemoteAPI
	snapshot *catalog.Snapshot
	carts    cartstore.Store

	mu         sync.Mutex
	submitting map[string]bool
}

func New(remoteAPI RemoteAPI, snapshot *catalog.Snapshot, carts cartstore.Store) *Service {
	return &Service{
		remote:     remoteAPI,
		snapshot:   snapshot,
		carts:      carts,
		submitting: make(map[string]bool),
	}
}

func (s *Service) session(ctx context.Context) (Session, error) {
	sess, ok := SessionFromContext(ctx)
	if !ok || sess.Operator.Username == "" {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// ensureSnapshot primes the catalog on first use. The snapshot cannot load
// at startup because every fetch needs an operator token.
func (s *Service) ensureSnapshot(ctx context.Context, sess Session) error {
	if !s.snapshot.FetchedAt().IsZero() {
		return nil
	}
	return s.snapshot.Load(ctx, sess.Token)
}

// loadCart rehydrates the operator's durable cart against the current
// snapshot. An empty snapshot would drop every stored line, so the catalog
// must be primed first. A missing entry is an empty cart.
func (s *Service) loadCart(ctx context.Context, sess Session) (*cart.Cart, error) {
	if err := s.ensureSnapshot(ctx, sess); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	key := cartstore.Key(sess.Operator.Username)
	saved, err := s.carts.Load(ctx, key)
	if err != nil {
		if errors.Is(err, cartstore.ErrNotFound) {
			return cart.New(sess.Operator.Username), nil
		}
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return cart.Restore(sess.Operator.Username, saved, s.snapshot.Get), nil
}

func (s *Service) persistCart(ctx context.Context, sess Session, c *cart.Cart) error {
	key := cartstore.Key(sess.Operator.Username)
	if c.IsEmpty() {
		return s.carts.Delete(ctx, key)
	}
	return s.carts.Save(ctx, key, c.Save())
}

// mutateCart runs one cart mutation: load, apply, and persist only when the
// mutation succeeded. A rejected mutation leaves both the in-memory cart and
// the stored cart at the previous valid state.
func (s *Service) mutateCart(ctx context.Context, fn func(*cart.Cart) error) (CartView, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return CartView{}, err
	}
	c, err := s.loadCart(ctx, sess)
	if err != nil {
		return CartView{}, err
	}
	if err := fn(c); err != nil {
		return viewOf(c), err
	}
	if err := s.persistCart(ctx, sess, c); err != nil {
		return CartView{}, err
	}
	return viewOf(c), nil
}

// GetCart returns the operator's current cart without mutating it.
func (s *Service) GetCart(ctx context.Context) (CartView, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return CartView{}, err
	}
	c, err := s.loadCart(ctx, sess)
	if err != nil {
		return CartView{}, err
	}
	return viewOf(c), nil
}

// AddToCart puts a catalog product into the cart. Only products the sales
// screen offers are addable.
func (s *Service) AddToCart(ctx context.Context, productID int64) (CartView, error) {
	return s.mutateCart(ctx, func(c *cart.Cart) error {
		p, ok := s.snapshot.Get(productID)
		if !ok || !p.Active {
			return ErrUnknownProduct
		}
		return c.Add(p)
	})
}

func (s *Service) IncrementLine(ctx context.Context, productID int64) (CartView, error) {
	return s.mutateCart(ctx, func(c *cart.Cart) error {
		return c.Increment(productID)
	})
}

func (s *Service) DecrementLine(ctx context.Context, productID int64) (CartView, error) {
	return s.mutateCart(ctx, func(c *cart.Cart) error {
		return c.Decrement(productID)
	})
}

// SetLineAmount replaces a weight line's money amount. The raw operator input
// is parsed digits-only, so thousands separators and currency signs pass
// through unchanged.
func (s *Service) SetLineAmount(ctx context.Context, productID int64, raw string) (CartView, error) {
	return s.mutateCart(ctx, func(c *cart.Cart) error {
		return c.SetAmount(productID, pricing.ParseAmount(raw))
	})
}

func (s *Service) RemoveLine(ctx context.Context, productID int64) (CartView, error) {
	return s.mutateCart(ctx, func(c *cart.Cart) error {
		c.Remove(productID)
		return nil
	})
}

func (s *Service) ClearCart(ctx context.Context) (CartView, error) {
	return s.mutateCart(ctx, func(c *cart.Cart) error {
		c.Clear()
		return nil
	})
}

// PreviewChange runs the cash change calculator against the current cart
// total. It never blocks a sale; a shortfall is advisory.
func (s *Service) PreviewChange(ctx context.Context, rawTendered string, method domain.PaymentMethod) (pricing.ChangeResult, error) {
	view, err := s.GetCart(ctx)
	if err != nil {
		return pricing.ChangeResult{}, err
	}
	return pricing.Change(view.Total, pricing.ParseAmount(rawTendered), method), nil
}

// CheckoutInput is the operator's confirmation of the sale.
type CheckoutInput struct {
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Tendered      string               `json:"tendered,omitempty"`
	CustomerName  string               `json:"customer_name,omitempty"`
	CustomerEmail string               `json:"customer_email,omitempty"`
	Notes         string               `json:"notes,omitempty"`
}

// Checkout submits the cart as a sale. Preconditions are checked locally and
// abort before any network call. On success the cart is cleared and its
// stored entry deleted; on failure the cart is left untouched for retry. At
// most one submission per operator may be in flight.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (domain.SaleRecord, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	if !domain.IsSupportedPaymentMethod(in.PaymentMethod) {
		return domain.SaleRecord{}, ErrUnsupportedPayment
	}

	c, err := s.loadCart(ctx, sess)
	if err != nil {
		return domain.SaleRecord{}, err
	}
	if c.IsEmpty() {
		return domain.SaleRecord{}, ErrEmptyCart
	}

	items, err := serializeLines(c.Lines())
	if err != nil {
		return domain.SaleRecord{}, err
	}

	if !s.beginSubmission(sess.Operator.Username) {
		return domain.SaleRecord{}, ErrSubmissionInFlight
	}
	defer s.endSubmission(sess.Operator.Username)

	sale, err := s.remote.CreateSale(ctx, sess.Token, domain.SaleCreateRequest{
		PaymentMethod: in.PaymentMethod,
		Items:         items,
		CustomerName:  in.CustomerName,
		CustomerEmail: in.CustomerEmail,
		Notes:         in.Notes,
	})
	if err != nil {
		return domain.SaleRecord{}, err
	}

	c.Clear()
	if err := s.carts.Delete(ctx, cartstore.Key(sess.Operator.Username)); err != nil {
		log.Printf("[service] WARN: clearing stored cart for %s: %v", sess.Operator.Username, err)
	}
	// The sale changed stock server-side; refetch so the next cart sees it.
	if err := s.snapshot.Refresh(ctx, sess.Token); err != nil {
		log.Printf("[service] WARN: catalog refresh after sale: %v", err)
	}
	logAudit(sess.Operator.Username, "sale", fmt.Sprintf("id=%d total=%s method=%s",
		sale.ID, sale.Total.StringFixed(pricing.MoneyScale), sale.PaymentMethod))
	return sale, nil
}

// serializeLines turns cart lines into the wire items of a sale. Weight lines
// carry the rounded weight as quantity and an adjusted per-kg price so the
// server-side product reproduces the tendered amount.
func serializeLines(lines []cart.Line) ([]domain.SaleItem, error) {
	items := make([]domain.SaleItem, 0, len(lines))
	for _, l := range lines {
		if l.Product.Mode == domain.ModeByWeight {
			if l.Amount.Sign() <= 0 {
				return nil, ErrAmountPending
			}
			price, err := pricing.AdjustedUnitPrice(l.Amount, l.Weight)
			if err != nil {
				return nil, err
			}
			items = append(items, domain.SaleItem{
				ProductID: l.Product.ID,
				Quantity:  l.Weight,
				Price:     price,
			})
			continue
		}
		items = append(items, domain.SaleItem{
			ProductID: l.Product.ID,
			Quantity:  l.Quantity,
			Price:     l.Product.Price,
		})
	}
	return items, nil
}

func (s *Service) beginSubmission(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting[username] {
		return false
	}
	s.submitting[username] = true
	return true
}

func (s *Service) endSubmission(username string) {
	s.mu.Lock()
	delete(s.submitting, username)
	s.mu.Unlock()
}

// RefreshCatalog forces a snapshot refetch.
func (s *Service) RefreshCatalog(ctx context.Context) error {
	sess, err := s.session(ctx)
	if err != nil {
		return err
	}
	return s.snapshot.Refresh(ctx, sess.Token)
}

// SaleCatalog returns the products the sales screen offers, with display
// pricing attached.
func (s *Service) SaleCatalog(ctx context.Context) ([]ProductView, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.ensureSnapshot(ctx, sess); err != nil {
		return nil, err
	}
	products := s.snapshot.ForSale()
	views := make([]ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, productView(p))
	}
	return views, nil
}

// ListProducts proxies the management listing, which includes inactive
// products. Malformed remote entries are skipped.
func (s *Service) ListProducts(ctx context.Context, q remote.ProductQuery) ([]ProductView, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	raws, err := s.remote.ListProducts(ctx, sess.Token, q)
	if err != nil {
		return nil, err
	}
	views := make([]ProductView, 0, len(raws))
	for _, raw := range raws {
		p, err := catalog.Normalize(raw)
		if err != nil {
			log.Printf("[service] WARN: skipping product in listing: %v", err)
			continue
		}
		views = append(views, productView(p))
	}
	return views, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (ProductView, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return ProductView{}, err
	}
	raw, err := s.remote.CreateProduct(ctx, sess.Token, req)
	if err != nil {
		return ProductView{}, err
	}
	s.refreshAfterWrite(ctx, sess)
	p, err := catalog.Normalize(raw)
	if err != nil {
		return ProductView{}, err
	}
	logAudit(sess.Operator.Username, "product_create", fmt.Sprintf("id=%d name=%q", p.ID, p.Name))
	return productView(p), nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (ProductView, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return ProductView{}, err
	}
	raw, err := s.remote.UpdateProduct(ctx, sess.Token, id, req)
	if err != nil {
		return ProductView{}, err
	}
	s.refreshAfterWrite(ctx, sess)
	p, err := catalog.Normalize(raw)
	if err != nil {
		return ProductView{}, err
	}
	logAudit(sess.Operator.Username, "product_update", fmt.Sprintf("id=%d", id))
	return productView(p), nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	sess, err := s.session(ctx)
	if err != nil {
		return err
	}
	if err := s.remote.DeleteProduct(ctx, sess.Token, id); err != nil {
		return err
	}
	s.refreshAfterWrite(ctx, sess)
	logAudit(sess.Operator.Username, "product_delete", fmt.Sprintf("id=%d", id))
	return nil
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return nil, err
	}
	return s.remote.ListCategories(ctx, sess.Token)
}

func (s *Service) CreateCategory(ctx context.Context, req domain.CategoryCreateRequest) (domain.Category, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return domain.Category{}, err
	}
	cat, err := s.remote.CreateCategory(ctx, sess.Token, req)
	if err != nil {
		return domain.Category{}, err
	}
	logAudit(sess.Operator.Username, "category_create", fmt.Sprintf("id=%d name=%q", cat.ID, cat.Name))
	return cat, nil
}

func (s *Service) refreshAfterWrite(ctx context.Context, sess Session) {
	if err := s.snapshot.Refresh(ctx, sess.Token); err != nil {
		log.Printf("[service] WARN: catalog refresh after write: %v", err)
	}
}

func logAudit(operator, action, detail string) {
	log.Printf("[service] audit: operator=%s action=%s %s", operator, action, detail)
}

// ProductView is a catalog product with display pricing. PriceLb is derived
// for weight-priced products only.
type ProductView struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Price       decimal.Decimal    `json:"price"`
	PriceLb     *decimal.Decimal   `json:"price_lb,omitempty"`
	Cost        decimal.Decimal    `json:"cost"`
	Stock       decimal.Decimal    `json:"stock"`
	Mode        domain.PricingMode `json:"unidad_medida"`
	Barcode     string             `json:"barcode,omitempty"`
	CategoryID  int64              `json:"category_id,omitempty"`
	ImageRef    string             `json:"image,omitempty"`
	Active      bool               `json:"is_active"`
}

func productView(p domain.Product) ProductView {
	v := ProductView{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Cost:        p.Cost,
		Stock:       p.Stock,
		Mode:        p.Mode,
		Barcode:     p.Barcode,
		CategoryID:  p.CategoryID,
		ImageRef:    p.ImageRef,
		Active:      p.Active,
	}
	if p.Mode == domain.ModeByWeight {
		lb := pricing.PricePerPound(p.Price)
		v.PriceLb = &lb
	}
	return v
}

// CartLineView is the wire form of one cart line.
type CartLineView struct {
	ProductID int64              `json:"product_id"`
	Name      string             `json:"name"`
	Mode      domain.PricingMode `json:"unidad_medida"`
	UnitPrice decimal.Decimal    `json:"unit_price"`
	Quantity  decimal.Decimal    `json:"quantity,omitempty"`
	Amount    decimal.Decimal    `json:"amount,omitempty"`
	WeightKg  decimal.Decimal    `json:"weight_kg,omitempty"`
	WeightLb  decimal.Decimal    `json:"weight_lb,omitempty"`
	Subtotal  decimal.Decimal    `json:"subtotal"`
	StockLeft decimal.Decimal    `json:"stock_left"`
}

// CartView is the wire form of the whole cart.
type CartView struct {
	Operator string          `json:"operator"`
	Lines    []CartLineView  `json:"lines"`
	Total    decimal.Decimal `json:"total"`
}

func viewOf(c *cart.Cart) CartView {
	lines := make([]CartLineView, 0, c.Len())
	for _, l := range c.Lines() {
		lv := CartLineView{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Mode:      l.Product.Mode,
			UnitPrice: l.Product.Price,
			Quantity:  l.Quantity,
			Amount:    l.Amount,
			Subtotal:  l.Subtotal(),
			StockLeft: l.Product.Stock.Sub(l.Committed()),
		}
		if l.Product.Mode == domain.ModeByWeight {
			lv.WeightKg = l.Weight
			lv.WeightLb = pricing.ToPounds(l.Weight)
		}
		lines = append(lines, lv)
	}
	return CartView{Operator: c.Operator(), Lines: lines, Total: c.Total()}
}
