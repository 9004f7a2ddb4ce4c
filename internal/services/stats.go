package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/money"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Stats summarizes one owner's invoices.
type Stats struct {
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
	AverageTotal  decimal.Decimal `json:"average_total"`
	TotalInvoices int64           `json:"total_invoices"`
	TotalClients  int64           `json:"total_clients"`
	Overdue       int64           `json:"overdue_invoices"`
	Paid          int64           `json:"paid_invoices"`
	Draft         int64           `json:"draft_invoices"`
}

// MarshalJSON writes the money fields as fixed two-place strings.
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	return json.Marshal(struct {
		plain
		TotalRevenue string `json:"total_revenue"`
		AverageTotal string `json:"average_total"`
	}{
		plain:        plain(s),
		TotalRevenue: money.Format(s.TotalRevenue),
		AverageTotal: money.Format(s.AverageTotal),
	})
}

// Stats computes revenue over paid invoices, the average invoice total and per-status counts.
// Sums are taken in decimal on the application side so both drivers agree exactly.
func (s *InvoiceService) Stats(ctx context.Context, ownerID uint) (*Stats, error) {
	var (
		out        Stats
		paidTotals []decimal.Decimal
		allTotals  []decimal.Decimal
	)
	g, ctx := errgroup.WithContext(ctx)
	invoices := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.Invoice{}).Where("user_id = ?", ownerID)
	}
	countStatus := func(status models.InvoiceStatus, dst *int64) func() error {
		return func() error {
			return invoices().Where("status = ?", status).Count(dst).Error
		}
	}

	g.Go(func() error {
		return invoices().Where("status = ?", models.InvoiceStatusPaid).Pluck("total", &paidTotals).Error
	})
	g.Go(func() error { return invoices().Pluck("total", &allTotals).Error })
	g.Go(func() error {
		return s.db.WithContext(ctx).Model(&models.Client{}).Where("user_id = ?", ownerID).Count(&out.TotalClients).Error
	})
	g.Go(countStatus(models.InvoiceStatusOverdue, &out.Overdue))
	g.Go(countStatus(models.InvoiceStatusPaid, &out.Paid))
	g.Go(countStatus(models.InvoiceStatusDraft, &out.Draft))
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("invoice stats: %w", err)
	}

	out.TotalRevenue = money.Sum(paidTotals...)
	out.TotalInvoices = int64(len(allTotals))
	out.AverageTotal = decimal.Zero
	if out.TotalInvoices > 0 {
		avg, err := money.Div(money.Sum(allTotals...), decimal.NewFromInt(out.TotalInvoices))
		if err != nil {
			return nil, err
		}
		out.AverageTotal = money.Round(avg)
	}
	return &out, nil
}
