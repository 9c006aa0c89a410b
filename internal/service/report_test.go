package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"petpos/terminal/internal/domain"
)

func TestResolveRange(t *testing.T) {
	now := time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC)

	cases := []struct {
		name      string
		query     SummaryQuery
		wantStart string
		wantEnd   string
	}{
		{"default is today", SummaryQuery{}, "2026-03-15", "2026-03-15"},
		{"today", SummaryQuery{Preset: RangeToday}, "2026-03-15", "2026-03-15"},
		{"week", SummaryQuery{Preset: RangeWeek}, "2026-03-09", "2026-03-15"},
		{"month", SummaryQuery{Preset: RangeMonth}, "2026-03-01", "2026-03-15"},
		{"prev month", SummaryQuery{Preset: RangePrevMonth}, "2026-02-01", "2026-02-28"},
		{
			"custom",
			SummaryQuery{Preset: RangeCustom, StartDate: "2026-01-10", EndDate: "2026-01-20"},
			"2026-01-10", "2026-01-20",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			start, end, err := resolveRange(tc.query, now)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if got := start.Format(dateLayout); got != tc.wantStart {
				t.Fatalf("start = %s, want %s", got, tc.wantStart)
			}
			if got := end.Format(dateLayout); got != tc.wantEnd {
				t.Fatalf("end = %s, want %s", got, tc.wantEnd)
			}
		})
	}
}

func TestResolveRangeRejectsBadInput(t *testing.T) {
	now := time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC)

	bad := []SummaryQuery{
		{Preset: "fortnight"},
		{Preset: RangeCustom, StartDate: "not-a-date", EndDate: "2026-01-20"},
		{Preset: RangeCustom, StartDate: "2026-01-20", EndDate: "2026-01-10"},
	}
	for _, q := range bad {
		if _, _, err := resolveRange(q, now); !errors.Is(err, ErrBadRange) {
			t.Fatalf("expected ErrBadRange for %+v, got %v", q, err)
		}
	}
}

func saleAt(t *testing.T, day string, total string, method domain.PaymentMethod, items ...domain.SaleRecordItem) domain.SaleRecord {
	t.Helper()
	at, err := time.Parse(time.RFC3339, day)
	if err != nil {
		t.Fatalf("bad time %q: %v", day, err)
	}
	return domain.SaleRecord{
		CreatedAt:     at,
		Total:         dec(t, total),
		PaymentMethod: method,
		Items:         items,
	}
}

func TestSummarize(t *testing.T) {
	svc, _, _ := newTestService(t)
	// Prime the snapshot so profit rows can join product costs.
	if err := svc.snapshot.Refresh(context.Background(), "token"); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	now := time.Date(2026, time.March, 15, 14, 30, 0, 0, time.UTC)
	start := time.Date(2026, time.March, 13, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)

	sales := []domain.SaleRecord{
		saleAt(t, "2026-03-13T10:00:00Z", "24000", domain.PaymentCash,
			domain.SaleRecordItem{ProductID: 1, ProductName: "Croquetas", Quantity: dec(t, "2"), Subtotal: dec(t, "24000")},
		),
		saleAt(t, "2026-03-15T09:00:00Z", "10000", domain.PaymentNequi,
			domain.SaleRecordItem{ProductID: 7, ProductName: "Concentrado a granel", Quantity: dec(t, "2.5"), Subtotal: dec(t, "10000")},
		),
		saleAt(t, "2026-03-15T11:00:00Z", "12000", domain.PaymentCash,
			domain.SaleRecordItem{ProductID: 1, ProductName: "Croquetas", Quantity: dec(t, "1"), Subtotal: dec(t, "12000")},
		),
		// Outside the interval, must be ignored.
		saleAt(t, "2026-03-10T11:00:00Z", "99999", domain.PaymentCash),
	}

	sum := svc.summarize(sales, start, end, now)

	if sum.PeriodCount != 3 || !sum.PeriodTotal.Equal(dec(t, "46000")) {
		t.Fatalf("expected 3 sales totalling 46000, got %d / %s", sum.PeriodCount, sum.PeriodTotal)
	}
	if sum.TodayCount != 2 || !sum.TodayTotal.Equal(dec(t, "22000")) {
		t.Fatalf("expected 2 sales today totalling 22000, got %d / %s", sum.TodayCount, sum.TodayTotal)
	}
	if !sum.AverageTicket.Equal(dec(t, "15333.33")) {
		t.Fatalf("expected average ticket 15333.33, got %s", sum.AverageTicket)
	}

	if len(sum.ByPayment) != 2 {
		t.Fatalf("expected 2 payment buckets, got %+v", sum.ByPayment)
	}
	// Buckets come out in the fixed method order, cash first.
	if sum.ByPayment[0].Method != domain.PaymentCash || sum.ByPayment[0].Count != 2 {
		t.Fatalf("unexpected cash bucket %+v", sum.ByPayment[0])
	}
	if !sum.ByPayment[0].Total.Equal(dec(t, "36000")) {
		t.Fatalf("expected cash total 36000, got %s", sum.ByPayment[0].Total)
	}

	if len(sum.Daily) != 3 {
		t.Fatalf("expected 3 daily points, got %d", len(sum.Daily))
	}
	if sum.Daily[1].Date != "2026-03-14" || sum.Daily[1].Count != 0 {
		t.Fatalf("expected zero-filled middle day, got %+v", sum.Daily[1])
	}

	if len(sum.TopProducts) != 2 {
		t.Fatalf("expected 2 top products, got %d", len(sum.TopProducts))
	}
	if sum.TopProducts[0].ProductID != 1 || !sum.TopProducts[0].Quantity.Equal(dec(t, "3")) {
		t.Fatalf("expected product 1 on top with quantity 3, got %+v", sum.TopProducts[0])
	}

	// Costs are zero in the test catalog, so profit equals revenue.
	if !sum.ProfitTotal.Equal(dec(t, "46000")) {
		t.Fatalf("expected profit total 46000, got %s", sum.ProfitTotal)
	}
}

func TestHistoricRangeFetchesTodaySeparately(t *testing.T) {
	svc, fake, _ := newTestService(t)

	now := time.Now().UTC()
	prevMonthDay := time.Date(now.Year(), now.Month(), 1, 12, 0, 0, 0, time.UTC).AddDate(0, -1, 3)
	fake.sales = []domain.SaleRecord{
		saleAt(t, prevMonthDay.Format(time.RFC3339), "24000", domain.PaymentCash),
	}
	fake.todaySales = []domain.SaleRecord{
		saleAt(t, now.Format(time.RFC3339), "9000", domain.PaymentCash),
		saleAt(t, now.Format(time.RFC3339), "1000", domain.PaymentNequi),
	}

	sum, err := svc.DashboardSummary(testCtx(), SummaryQuery{Preset: RangePrevMonth})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.PeriodCount != 1 || !sum.PeriodTotal.Equal(dec(t, "24000")) {
		t.Fatalf("period = %d sales / %s, want 1 / 24000", sum.PeriodCount, sum.PeriodTotal)
	}
	if sum.TodayCount != 2 || !sum.TodayTotal.Equal(dec(t, "10000")) {
		t.Fatalf("today = %d sales / %s, want 2 / 10000", sum.TodayCount, sum.TodayTotal)
	}

	if len(fake.saleQueries) != 2 {
		t.Fatalf("expected a ranged listing plus a today listing, got %d calls", len(fake.saleQueries))
	}
	if fake.saleQueries[0].Today || !fake.saleQueries[1].Today {
		t.Fatalf("expected only the second listing to ask for today: %+v", fake.saleQueries)
	}
}

func TestTodayRangeSkipsSecondFetch(t *testing.T) {
	svc, fake, _ := newTestService(t)
	fake.sales = []domain.SaleRecord{
		saleAt(t, time.Now().UTC().Format(time.RFC3339), "12000", domain.PaymentCash),
	}

	sum, err := svc.DashboardSummary(testCtx(), SummaryQuery{Preset: RangeToday})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.TodayCount != 1 || !sum.TodayTotal.Equal(dec(t, "12000")) {
		t.Fatalf("today = %d sales / %s, want 1 / 12000", sum.TodayCount, sum.TodayTotal)
	}
	if len(fake.saleQueries) != 1 {
		t.Fatalf("the today range already covers today, expected 1 listing, got %d", len(fake.saleQueries))
	}
}
