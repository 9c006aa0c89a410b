package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"petpos/terminal/internal/domain"
	"petpos/terminal/internal/pricing"
	"petpos/terminal/internal/remote"
)

const dateLayout = "2006-01-02"

var ErrBadRange = errors.New("invalid dashboard range")

type RangePreset string

const (
	RangeToday     RangePreset = "today"
	RangeWeek      RangePreset = "week"
	RangeMonth     RangePreset = "month"
	RangePrevMonth RangePreset = "prev_month"
	RangeCustom    RangePreset = "custom"
)

// SummaryQuery selects the dashboard interval. StartDate and EndDate are
// only read for the custom preset, as YYYY-MM-DD.
type SummaryQuery struct {
	Preset    RangePreset
	StartDate string
	EndDate   string
}

type PaymentBucket struct {
	Method domain.PaymentMethod `json:"method"`
	Total  decimal.Decimal      `json:"total"`
	Count  int                  `json:"count"`
}

type DailyPoint struct {
	Date  string          `json:"date"`
	Total decimal.Decimal `json:"total"`
	Count int             `json:"count"`
}

type TopProduct struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

// ProfitRow estimates per-product margin over the interval, joining sale
// items with the snapshot's cost. Products missing from the snapshot are
// reported at zero cost.
type ProfitRow struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
	Cost      decimal.Decimal `json:"cost"`
	Profit    decimal.Decimal `json:"profit"`
}

type DashboardSummary struct {
	RangeStart    string          `json:"range_start"`
	RangeEnd      string          `json:"range_end"`
	TodayTotal    decimal.Decimal `json:"today_total"`
	TodayCount    int             `json:"today_count"`
	PeriodTotal   decimal.Decimal `json:"period_total"`
	PeriodCount   int             `json:"period_count"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
	ByPayment     []PaymentBucket `json:"by_payment"`
	Daily         []DailyPoint    `json:"daily"`
	TopProducts   []TopProduct    `json:"top_products"`
	Profit        []ProfitRow     `json:"profit"`
	ProfitTotal   decimal.Decimal `json:"profit_total"`
}

// resolveRange turns a preset into a closed day interval [start, end].
func resolveRange(q SummaryQuery, now time.Time) (time.Time, time.Time, error) {
	day := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	today := day(now)

	switch q.Preset {
	case RangeToday, "":
		return today, today, nil
	case RangeWeek:
		return today.AddDate(0, 0, -6), today, nil
	case RangeMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), today, nil
	case RangePrevMonth:
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return first.AddDate(0, -1, 0), first.AddDate(0, 0, -1), nil
	case RangeCustom:
		start, err := time.ParseInLocation(dateLayout, q.StartDate, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: start %q", ErrBadRange, q.StartDate)
		}
		end, err := time.ParseInLocation(dateLayout, q.EndDate, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end %q", ErrBadRange, q.EndDate)
		}
		if end.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: end before start", ErrBadRange)
		}
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown preset %q", ErrBadRange, q.Preset)
	}
}

// DashboardSummary aggregates the interval's sales into the dashboard
// figures. Aggregation happens here rather than on the remote service, which
// only offers the raw sale listing.
func (s *Service) DashboardSummary(ctx context.Context, q SummaryQuery) (DashboardSummary, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return DashboardSummary{}, err
	}

	now := time.Now()
	start, end, err := resolveRange(q, now)
	if err != nil {
		return DashboardSummary{}, err
	}

	sales, err := s.remote.ListSales(ctx, sess.Token, remote.SaleQuery{
		StartDate: start.Format(dateLayout),
		EndDate:   end.Format(dateLayout),
		Limit:     5000,
	})
	if err != nil {
		return DashboardSummary{}, err
	}

	summary := s.summarize(sales, start, end, now)

	// A historic interval never contains today's sales, so the today figures
	// need their own fetch to stay live while the operator browses old ranges.
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if midnight.Before(start) || midnight.After(end) {
		todaySales, err := s.remote.ListSales(ctx, sess.Token, remote.SaleQuery{Today: true, Limit: 5000})
		if err != nil {
			return DashboardSummary{}, err
		}
		for _, sale := range todaySales {
			summary.TodayTotal = summary.TodayTotal.Add(sale.Total)
			summary.TodayCount++
		}
		summary.TodayTotal = summary.TodayTotal.Round(pricing.MoneyScale)
	}

	return summary, nil
}

func (s *Service) summarize(sales []domain.SaleRecord, start, end, now time.Time) DashboardSummary {
	out := DashboardSummary{
		RangeStart: start.Format(dateLayout),
		RangeEnd:   end.Format(dateLayout),
	}

	today := now.Format(dateLayout)
	cutoff := end.AddDate(0, 0, 1)
	byMethod := make(map[domain.PaymentMethod]*PaymentBucket)
	byDay := make(map[string]*DailyPoint)
	type productAgg struct {
		name     string
		quantity decimal.Decimal
		revenue  decimal.Decimal
	}
	byProduct := make(map[int64]*productAgg)

	for _, sale := range sales {
		at := sale.CreatedAt.In(now.Location())
		if at.Before(start) || !at.Before(cutoff) {
			continue
		}
		date := at.Format(dateLayout)

		out.PeriodTotal = out.PeriodTotal.Add(sale.Total)
		out.PeriodCount++
		if date == today {
			out.TodayTotal = out.TodayTotal.Add(sale.Total)
			out.TodayCount++
		}

		bucket, ok := byMethod[sale.PaymentMethod]
		if !ok {
			bucket = &PaymentBucket{Method: sale.PaymentMethod}
			byMethod[sale.PaymentMethod] = bucket
		}
		bucket.Total = bucket.Total.Add(sale.Total)
		bucket.Count++

		point, ok := byDay[date]
		if !ok {
			point = &DailyPoint{Date: date}
			byDay[date] = point
		}
		point.Total = point.Total.Add(sale.Total)
		point.Count++

		for _, item := range sale.Items {
			agg, ok := byProduct[item.ProductID]
			if !ok {
				agg = &productAgg{name: item.ProductName}
				byProduct[item.ProductID] = agg
			}
			agg.quantity = agg.quantity.Add(item.Quantity)
			agg.revenue = agg.revenue.Add(item.Subtotal)
		}
	}

	out.PeriodTotal = out.PeriodTotal.Round(pricing.MoneyScale)
	out.TodayTotal = out.TodayTotal.Round(pricing.MoneyScale)
	if out.PeriodCount > 0 {
		out.AverageTicket = out.PeriodTotal.
			Div(decimal.NewFromInt(int64(out.PeriodCount))).
			Round(pricing.MoneyScale)
	}

	for _, method := range domain.SupportedPaymentMethods() {
		if bucket, ok := byMethod[method]; ok {
			out.ByPayment = append(out.ByPayment, *bucket)
		}
	}

	// One point per day across the whole interval, zero-filled.
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(dateLayout)
		if point, ok := byDay[date]; ok {
			out.Daily = append(out.Daily, *point)
		} else {
			out.Daily = append(out.Daily, DailyPoint{Date: date})
		}
	}

	ids := make([]int64, 0, len(byProduct))
	for id := range byProduct {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := byProduct[ids[i]], byProduct[ids[j]]
		if !a.quantity.Equal(b.quantity) {
			return a.quantity.GreaterThan(b.quantity)
		}
		return ids[i] < ids[j]
	})

	for rank, id := range ids {
		agg := byProduct[id]
		if rank < 10 {
			out.TopProducts = append(out.TopProducts, TopProduct{
				ProductID: id,
				Name:      agg.name,
				Quantity:  agg.quantity,
				Revenue:   agg.revenue.Round(pricing.MoneyScale),
			})
		}

		row := ProfitRow{
			ProductID: id,
			Name:      agg.name,
			Quantity:  agg.quantity,
			Revenue:   agg.revenue.Round(pricing.MoneyScale),
		}
		if p, ok := s.snapshot.Get(id); ok {
			row.Cost = p.Cost.Mul(agg.quantity).Round(pricing.MoneyScale)
		}
		row.Profit = row.Revenue.Sub(row.Cost)
		out.Profit = append(out.Profit, row)
		out.ProfitTotal = out.ProfitTotal.Add(row.Profit)
	}

	return out
}
