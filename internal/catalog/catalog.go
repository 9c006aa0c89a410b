// Package catalog is the stock ledger snapshot: the most recently fetched,
// normalized view of the remote product catalog. It is the single place that
// understands the remote API's loose product shapes; everything downstream
// works with the canonical domain.Product.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"petpos/terminal/internal/cache"
	"petpos/terminal/internal/domain"
	"petpos/terminal/internal/remote"
)

const snapshotCacheKey = "catalog_snapshot"

// Lister is the slice of the remote client the snapshot needs.
type Lister interface {
	ListProducts(ctx context.Context, token string, q remote.ProductQuery) ([]remote.RawProduct, error)
}

// Normalize maps any accepted external product shape onto the canonical
// Product. Alias keys (name/nombre, price/precio), string-or-number stock,
// and the two image transports are resolved here and nowhere else.
func Normalize(raw remote.RawProduct) (domain.Product, error) {
	if raw.ID == 0 {
		return domain.Product{}, fmt.Errorf("product without id")
	}

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = strings.TrimSpace(raw.Nombre)
	}
	if name == "" {
		return domain.Product{}, fmt.Errorf("product %d without name", raw.ID)
	}

	price, err := parseNumber(raw.Price)
	if err != nil || price.IsZero() {
		if alt, altErr := parseNumber(raw.Precio); altErr == nil && !alt.IsZero() {
			price, err = alt, nil
		}
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %d: bad price: %w", raw.ID, err)
	}
	if price.Sign() < 0 {
		return domain.Product{}, fmt.Errorf("product %d: negative price", raw.ID)
	}

	cost, err := parseNumber(raw.Cost)
	if err != nil {
		cost = decimal.Zero
	}

	stock, err := parseStock(raw.Stock)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %d: bad stock: %w", raw.ID, err)
	}
	if stock.Sign() < 0 {
		stock = decimal.Zero
	}

	mode := domain.ModeByUnit
	if strings.EqualFold(strings.TrimSpace(raw.UnidadMedida), string(domain.ModeByWeight)) {
		mode = domain.ModeByWeight
	}

	imageRef := raw.ImageURL
	if imageRef == "" && raw.ImageBase64 != nil && *raw.ImageBase64 != "" {
		imageRef = "data:image/jpeg;base64," + *raw.ImageBase64
	}

	active := true
	if raw.IsActive != nil {
		active = *raw.IsActive
	}

	return domain.Product{
		ID:          raw.ID,
		Name:        name,
		Description: strings.TrimSpace(raw.Description),
		Price:       price,
		Cost:        cost,
		Stock:       stock,
		Mode:        mode,
		Barcode:     raw.Barcode,
		CategoryID:  raw.CategoryID,
		ImageRef:    imageRef,
		Active:      active,
	}, nil
}

func parseNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(n.String())
}

// parseStock accepts a JSON number, a numeric string, or a legacy annotated
// string such as "15 unidades", taking the leading numeric run.
func parseStock(raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, nil
	}

	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return decimal.NewFromString(num.String())
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Zero, fmt.Errorf("unsupported stock value %s", string(raw))
	}
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	if end == 0 {
		return decimal.Zero, fmt.Errorf("unsupported stock value %q", s)
	}
	return decimal.NewFromString(s[:end])
}

// Snapshot caches the normalized catalog in memory, with an optional durable
// cache behind it. Refresh replaces the whole snapshot; products are never
// mutated in place.
type Snapshot struct {
	mu        sync.RWMutex
	lister    Lister
	cache     cache.SnapshotCache
	ttl       time.Duration
	products  []domain.Product
	byID      map[int64]domain.Product
	fetchedAt time.Time
}

func NewSnapshot(lister Lister, snapshotCache cache.SnapshotCache, ttl time.Duration) *Snapshot {
	if snapshotCache == nil {
		snapshotCache = cache.NoopSnapshotCache{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Snapshot{
		lister: lister,
		cache:  snapshotCache,
		ttl:    ttl,
		byID:   make(map[int64]domain.Product),
	}
}

// Refresh fetches the active catalog from the remote service and replaces the
// snapshot. Individual malformed products are skipped with a warning rather
// than failing the whole refresh.
func (s *Snapshot) Refresh(ctx context.Context, token string) error {
	raws, err := s.lister.ListProducts(ctx, token, remote.ProductQuery{ActiveOnly: true, Limit: 1000})
	if err != nil {
		return err
	}

	products := make([]domain.Product, 0, len(raws))
	for _, raw := range raws {
		p, err := Normalize(raw)
		if err != nil {
			log.Printf("[catalog] WARN: skipping product: %v", err)
			continue
		}
		products = append(products, p)
	}

	s.install(products)
	if err := s.cache.Set(ctx, snapshotCacheKey, products, s.ttl); err != nil {
		log.Printf("[catalog] WARN: snapshot cache write failed: %v", err)
	}
	return nil
}

// Load primes the snapshot, preferring the durable cache and falling back to
// a remote fetch.
func (s *Snapshot) Load(ctx context.Context, token string) error {
	cached, ok, err := s.cache.Get(ctx, snapshotCacheKey)
	if err != nil {
		log.Printf("[catalog] WARN: snapshot cache read failed: %v", err)
	}
	if ok && len(cached) > 0 {
		s.install(cached)
		return nil
	}
	return s.Refresh(ctx, token)
}

func (s *Snapshot) install(products []domain.Product) {
	byID := make(map[int64]domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	s.mu.Lock()
	s.products = products
	s.byID = byID
	s.fetchedAt = time.Now().UTC()
	s.mu.Unlock()
}

// Products returns the full snapshot in fetch order.
func (s *Snapshot) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, len(s.products))
	copy(out, s.products)
	return out
}

// Get looks up one product by id in the current snapshot.
func (s *Snapshot) Get(id int64) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	return p, ok
}

// ForSale returns the products the sales screen offers: active with stock
// remaining.
func (s *Snapshot) ForSale() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.Active && p.Stock.Sign() > 0 {
			out = append(out, p)
		}
	}
	return out
}

// FetchedAt reports when the snapshot was last replaced; zero when never
// loaded.
func (s *Snapshot) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}
