package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"petpos/terminal/internal/cache"
	"petpos/terminal/internal/cartstore"
	cartmemory "petpos/terminal/internal/cartstore/memory"
	"petpos/terminal/internal/catalog"
	"petpos/terminal/internal/domain"
	"petpos/terminal/internal/pricing"
	"petpos/terminal/internal/remote"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

// fakeRemote records every call so tests can assert what crossed the wire.
type fakeRemote struct {
	products   []remote.RawProduct
	sales      []domain.SaleRecord
	todaySales []domain.SaleRecord

	createdSales  []domain.SaleCreateRequest
	createSaleErr error
	saleStarted   chan struct{}
	saleRelease   chan struct{}
	listCalls     int
	saleQueries   []remote.SaleQuery
}

func (f *fakeRemote) ListProducts(_ context.Context, _ string, _ remote.ProductQuery) ([]remote.RawProduct, error) {
	f.listCalls++
	return f.products, nil
}

func (f *fakeRemote) CreateProduct(_ context.Context, _ string, req domain.ProductCreateRequest) (remote.RawProduct, error) {
	return remote.RawProduct{ID: 100, Name: req.Name, Price: json.Number(req.Price.String()), Stock: json.RawMessage(req.Stock.String())}, nil
}

func (f *fakeRemote) UpdateProduct(_ context.Context, _ string, id int64, _ domain.ProductUpdateRequest) (remote.RawProduct, error) {
	return remote.RawProduct{ID: id, Name: "updated", Price: "1000", Stock: json.RawMessage("1")}, nil
}

func (f *fakeRemote) DeleteProduct(_ context.Context, _ string, _ int64) error { return nil }

func (f *fakeRemote) ListCategories(_ context.Context, _ string) ([]domain.Category, error) {
	return []domain.Category{{ID: 1, Name: "Alimentos"}}, nil
}

func (f *fakeRemote) CreateCategory(_ context.Context, _ string, req domain.CategoryCreateRequest) (domain.Category, error) {
	return domain.Category{ID: 2, Name: req.Name}, nil
}

func (f *fakeRemote) CreateSale(_ context.Context, _ string, req domain.SaleCreateRequest) (domain.SaleRecord, error) {
	if f.saleStarted != nil {
		f.saleStarted <- struct{}{}
		<-f.saleRelease
	}
	if f.createSaleErr != nil {
		return domain.SaleRecord{}, f.createSaleErr
	}
	f.createdSales = append(f.createdSales, req)
	return domain.SaleRecord{ID: int64(len(f.createdSales)), Total: decimal.Zero, PaymentMethod: req.PaymentMethod}, nil
}

func (f *fakeRemote) ListSales(_ context.Context, _ string, q remote.SaleQuery) ([]domain.SaleRecord, error) {
	f.saleQueries = append(f.saleQueries, q)
	if q.Today {
		return f.todaySales, nil
	}
	return f.sales, nil
}

func testCatalog() []remote.RawProduct {
	return []remote.RawProduct{
		{ID: 1, Name: "Croquetas", Price: "12000", Stock: json.RawMessage("5")},
		{ID: 7, Name: "Concentrado a granel", Price: "4000", Stock: json.RawMessage("10"), UnidadMedida: "kg"},
		{ID: 9, Name: "Agotado", Price: "500", Stock: json.RawMessage("0")},
	}
}

func newTestService(t *testing.T) (*Service, *fakeRemote, cartstore.Store) {
	t.Helper()
	fake := &fakeRemote{products: testCatalog()}
	snapshot := catalog.NewSnapshot(fake, cache.NoopSnapshotCache{}, time.Minute)
	carts := cartmemory.New()
	return New(fake, snapshot, carts), fake, carts
}

func testCtx() context.Context {
	return WithSession(context.Background(), Session{
		Operator: domain.Operator{ID: 1, Username: "maria", Role: "cashier", Active: true},
		Token:    "test-token",
	})
}

func TestCartMutationsPersistAcrossLoads(t *testing.T) {
	svc, _, carts := newTestService(t)
	ctx := testCtx()

	if _, err := svc.AddToCart(ctx, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.SetLineAmount(ctx, 7, "6.000"); err == nil {
		t.Fatalf("amount entry on an absent line must fail")
	}
	if _, err := svc.AddToCart(ctx, 7); err != nil {
		t.Fatalf("add weight: %v", err)
	}
	view, err := svc.SetLineAmount(ctx, 7, "6.000")
	if err != nil {
		t.Fatalf("set amount: %v", err)
	}
	if !view.Total.Equal(dec(t, "18000")) {
		t.Fatalf("expected total 18000, got %s", view.Total)
	}

	// A fresh read rehydrates from durable storage.
	view, err = svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(view.Lines) != 2 {
		t.Fatalf("expected 2 persisted lines, got %d", len(view.Lines))
	}
	if view.Lines[1].WeightKg.String() != "1.5" {
		t.Fatalf("expected 1.5 kg rehydrated, got %s", view.Lines[1].WeightKg)
	}

	saved, err := carts.Load(context.Background(), cartstore.Key("maria"))
	if err != nil {
		t.Fatalf("load stored cart: %v", err)
	}
	if len(saved) != 2 {
		t.Fatalf("expected 2 stored lines, got %d", len(saved))
	}
}

func TestRejectedMutationKeepsStoredCart(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := testCtx()

	if _, err := svc.AddToCart(ctx, 7); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.SetLineAmount(ctx, 7, "20000"); err != nil {
		t.Fatalf("set amount: %v", err)
	}

	// 10 kg of stock at 4000/kg caps the amount at 40000.
	_, err := svc.SetLineAmount(ctx, 7, "45000")
	var stockErr *pricing.StockExceededError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected stock exceeded, got %v", err)
	}
	if !stockErr.MaxAmount.Equal(dec(t, "40000")) {
		t.Fatalf("expected max amount 40000, got %s", stockErr.MaxAmount)
	}

	view, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if !view.Lines[0].Amount.Equal(dec(t, "20000")) {
		t.Fatalf("rejected entry must keep prior stored amount, got %s", view.Lines[0].Amount)
	}
}

func TestAddOutOfStockProductRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := testCtx()

	// Product 9 is in the snapshot with zero stock.
	_, err := svc.AddToCart(ctx, 9)
	var stockErr *pricing.StockExceededError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected stock exceeded, got %v", err)
	}

	if _, err := svc.AddToCart(ctx, 404); !errors.Is(err, ErrUnknownProduct) {
		t.Fatalf("expected ErrUnknownProduct, got %v", err)
	}
}

func TestCheckoutSubmitsAdjustedLinesAndClears(t *testing.T) {
	svc, fake, carts := newTestService(t)
	ctx := testCtx()

	if _, err := svc.AddToCart(ctx, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.IncrementLine(ctx, 1); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if _, err := svc.AddToCart(ctx, 7); err != nil {
		t.Fatalf("add weight: %v", err)
	}
	if _, err := svc.SetLineAmount(ctx, 7, "10.000"); err != nil {
		t.Fatalf("set amount: %v", err)
	}

	refreshesBefore := fake.listCalls
	sale, err := svc.Checkout(ctx, CheckoutInput{PaymentMethod: domain.PaymentNequi})
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if sale.PaymentMethod != domain.PaymentNequi {
		t.Fatalf("expected nequi sale, got %s", sale.PaymentMethod)
	}

	if len(fake.createdSales) != 1 {
		t.Fatalf("expected one sale submitted, got %d", len(fake.createdSales))
	}
	items := fake.createdSales[0].Items
	if len(items) != 2 {
		t.Fatalf("expected 2 sale items, got %d", len(items))
	}
	if !items[0].Quantity.Equal(dec(t, "2")) || !items[0].Price.Equal(dec(t, "12000")) {
		t.Fatalf("unexpected unit item %+v", items[0])
	}
	// 10000 at 4000/kg: 2.5 kg, adjusted price still 4000 since it divides
	// evenly.
	if !items[1].Quantity.Equal(dec(t, "2.5")) || !items[1].Price.Equal(dec(t, "4000")) {
		t.Fatalf("unexpected weight item %+v", items[1])
	}

	view, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(view.Lines) != 0 {
		t.Fatalf("checkout must clear the cart, got %d lines", len(view.Lines))
	}
	if _, err := carts.Load(context.Background(), cartstore.Key("maria")); !errors.Is(err, cartstore.ErrNotFound) {
		t.Fatalf("stored cart must be deleted after checkout, got %v", err)
	}
	if fake.listCalls <= refreshesBefore {
		t.Fatalf("checkout must refresh the catalog")
	}
}

func TestCheckoutPreconditionsAbortLocally(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := testCtx()

	if _, err := svc.Checkout(ctx, CheckoutInput{PaymentMethod: domain.PaymentCash}); !errors.Is(err, ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}

	if _, err := svc.AddToCart(ctx, 7); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.Checkout(ctx, CheckoutInput{PaymentMethod: domain.PaymentCash}); !errors.Is(err, ErrAmountPending) {
		t.Fatalf("expected ErrAmountPending, got %v", err)
	}
	if _, err := svc.Checkout(ctx, CheckoutInput{PaymentMethod: "tarjeta"}); !errors.Is(err, ErrUnsupportedPayment) {
		t.Fatalf("expected ErrUnsupportedPayment, got %v", err)
	}

	if len(fake.createdSales) != 0 {
		t.Fatalf("failed preconditions must never reach the sales service")
	}
}

func TestCheckoutFailureKeepsCart(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := testCtx()

	if _, err := svc.AddToCart(ctx, 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	fake.createSaleErr = remote.ErrStockConflict

	if _, err := svc.Checkout(ctx, CheckoutInput{PaymentMethod: domain.PaymentCash}); !errors.Is(err, remote.ErrStockConflict) {
		t.Fatalf("expected stock conflict, got %v", err)
	}

	view, err := svc.GetCart(ctx)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if len(view.Lines) != 1 {
		t.Fatalf("failed checkout must keep the cart for retry, got %d lines", len(view.Lines))
	}
}

func TestCheckoutGuardsConcurrentSubmission(t *testing.T) {
	svc, fake, _ := newTestService(t)
	ctx := testCtx()

	if _, err := svc.AddToCart(ctx, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	fake.saleStarted = make(chan struct{})
	fake.saleRelease = make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := svc.Checkout(ctx, CheckoutInput{PaymentMethod: domain.PaymentCash})
		done <- err
	}()

	<-fake.saleStarted
	fake.saleStarted = nil

	if _, err := svc.Checkout(ctx, CheckoutInput{PaymentMethod: domain.PaymentCash}); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("expected ErrSubmissionInFlight, got %v", err)
	}

	close(fake.saleRelease)
	if err := <-done; err != nil {
		t.Fatalf("first checkout failed: %v", err)
	}
}

func TestPreviewChange(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := testCtx()

	if _, err := svc.AddToCart(ctx, 1); err != nil {
		t.Fatalf("add: %v", err)
	}

	res, err := svc.PreviewChange(ctx, "50.000", domain.PaymentCash)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !res.Sufficient || !res.ChangeDue.Equal(dec(t, "38000")) {
		t.Fatalf("expected change 38000, got %+v", res)
	}

	res, err = svc.PreviewChange(ctx, "50.000", domain.PaymentDaviplata)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if res.Applicable {
		t.Fatalf("change must not apply to wallet payments")
	}
}

func TestOperationsRequireSession(t *testing.T) {
	svc, _, _ := newTestService(t)

	if _, err := svc.GetCart(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if _, err := svc.Checkout(context.Background(), CheckoutInput{PaymentMethod: domain.PaymentCash}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestSaleCatalogOffersOnlySellable(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := testCtx()

	products, err := svc.SaleCatalog(ctx)
	if err != nil {
		t.Fatalf("sale catalog: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected zero-stock product excluded, got %d products", len(products))
	}
	for _, p := range products {
		if p.ID == 9 {
			t.Fatalf("zero-stock product must not be offered")
		}
		if p.Mode == domain.ModeByWeight {
			if p.PriceLb == nil || !p.PriceLb.Equal(dec(t, "1814.37")) {
				t.Fatalf("expected per-lb price 1814.37, got %v", p.PriceLb)
			}
		}
	}
}
