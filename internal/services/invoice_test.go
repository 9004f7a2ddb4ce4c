package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestInvoiceService(t *testing.T) (*InvoiceService, models.User) {
	t.Helper()
	conn := setupTestDB(t)
	owner := seedUser(t, conn, "owner@test")
	return NewInvoiceService(conn, WithClock(fixedClock(2025, time.March, 10))), owner
}

func sampleDraft() Draft {
	return Draft{
		InvoiceDate:  "2025-03-10",
		DueDate:      "2025-04-09",
		Currency:     "eur",
		PaymentTerms: "Net 30",
		LineItems: []LineInput{
			line("Widget", "2", "50", "0"),
			line("Setup", "1", "25", "20"),
		},
	}
}

func requireViolation(t *testing.T, err error, field, code string) {
	t.Helper()
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)
	assert.Equal(t, code, verr.Violations[field], "violations: %v", verr.Violations)
}

func TestInvoiceCreate_ComputesTotalsAndDefaults(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	inv, err := svc.Create(context.Background(), owner.ID, sampleDraft())
	require.NoError(t, err)

	assert.Equal(t, "INV-202503-0001", inv.InvoiceNumber)
	assert.Equal(t, "EUR", inv.Currency)
	assert.Equal(t, models.InvoiceStatusDraft, inv.Status)
	assert.Equal(t, models.SourceManual, inv.Source)
	assert.Equal(t, "125.00", inv.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", inv.TotalTax.StringFixed(2))
	assert.Equal(t, "130.00", inv.Total.StringFixed(2))
	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, "Widget", inv.LineItems[0].Description)
	assert.Equal(t, "5.00", inv.LineItems[1].TaxAmount.StringFixed(2))
	require.NotNil(t, inv.DueDate)
	assert.Equal(t, "2025-04-09", inv.DueDate.Format(DateLayout))
}

func TestInvoiceCreate_RequiresInvoiceDate(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, owner.ID, Draft{LineItems: []LineInput{line("x", "", "1", "")}})
	requireViolation(t, err, "invoice_date", "required")
	_, err = svc.Create(ctx, owner.ID, Draft{InvoiceDate: "  ", LineItems: []LineInput{line("x", "", "1", "")}})
	requireViolation(t, err, "invoice_date", "required")

	var count int64
	require.NoError(t, svc.db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)

	inv, err := svc.Create(ctx, owner.ID, Draft{InvoiceDate: "2025-01-15", LineItems: []LineInput{line("x", "", "1", "")}})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", inv.InvoiceDate.Format(DateLayout))
	assert.Equal(t, DefaultCurrency, inv.Currency)
}

func TestInvoiceUpdate_RequiresInvoiceDate(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	d := sampleDraft()
	d.InvoiceDate = "2025-01-15"
	d.DueDate = ""
	created, err := svc.Create(ctx, owner.ID, d)
	require.NoError(t, err)

	d.InvoiceDate = ""
	_, err = svc.Update(ctx, owner.ID, created.ID, d)
	requireViolation(t, err, "invoice_date", "required")

	got, err := svc.Get(ctx, owner.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-15", got.InvoiceDate.Format(DateLayout))
}

func TestInvoiceCreate_Validation(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		draft Draft
		field string
		code  string
	}{
		{"no line items", Draft{}, "line_items", "required"},
		{"missing price", Draft{LineItems: []LineInput{{Description: "x"}}}, "line_items[0].unit_price", "required"},
		{"negative price", Draft{LineItems: []LineInput{line("x", "1", "-1", "")}}, "line_items[0].unit_price", "must_not_be_negative"},
		{"blank description", Draft{LineItems: []LineInput{line(" ", "1", "1", "")}}, "line_items[0].description", "required"},
		{"tax over 100", Draft{LineItems: []LineInput{line("x", "1", "1", "100.5")}}, "line_items[0].tax_rate", "out_of_range"},
		{"too precise price", Draft{LineItems: []LineInput{line("x", "1", "1.00001", "")}}, "line_items[0].unit_price", "too_precise"},
		{"bad currency", Draft{Currency: "EURO", LineItems: []LineInput{line("x", "1", "1", "")}}, "currency", "invalid_currency"},
		{"bad date", Draft{InvoiceDate: "10/03/2025", LineItems: []LineInput{line("x", "1", "1", "")}}, "invoice_date", "invalid_date"},
		{"due before date", Draft{InvoiceDate: "2025-03-10", DueDate: "2025-03-01", LineItems: []LineInput{line("x", "1", "1", "")}}, "due_date", "before_invoice_date"},
		{"bad status", Draft{Status: "archived", LineItems: []LineInput{line("x", "1", "1", "")}}, "status", "invalid"},
		{"bad source", Draft{Source: "email", LineItems: []LineInput{line("x", "1", "1", "")}}, "source", "invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, owner.ID, tt.draft)
			requireViolation(t, err, tt.field, tt.code)
		})
	}

	var count int64
	require.NoError(t, svc.db.Model(&models.Invoice{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInvoiceCreate_ForeignClientIsNotFound(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	other := seedUser(t, svc.db, "other@test")
	foreign := seedClient(t, svc.db, other.ID, "Foreign Co")

	d := sampleDraft()
	d.ClientID = &foreign.ID
	_, err := svc.Create(context.Background(), owner.ID, d)
	assert.ErrorIs(t, err, ErrNotFound)

	mine := seedClient(t, svc.db, owner.ID, "Mine Co")
	d.ClientID = &mine.ID
	inv, err := svc.Create(context.Background(), owner.ID, d)
	require.NoError(t, err)
	require.NotNil(t, inv.Client)
	assert.Equal(t, "Mine Co", inv.Client.Name)
}

func TestInvoiceGet_IsIdempotent(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)

	a, err := svc.Get(ctx, owner.ID, created.ID)
	require.NoError(t, err)
	b, err := svc.Get(ctx, owner.ID, created.ID)
	require.NoError(t, err)
	assert.Equal(t, a.InvoiceNumber, b.InvoiceNumber)
	assert.True(t, a.Total.Equal(b.Total))
	assert.Len(t, b.LineItems, len(a.LineItems))
}

func TestInvoice_OwnershipBoundary(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	intruder := seedUser(t, svc.db, "intruder@test")
	ctx := context.Background()
	inv, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)

	_, err = svc.Get(ctx, intruder.ID, inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Update(ctx, intruder.ID, inv.ID, sampleDraft())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.UpdateStatus(ctx, intruder.ID, inv.ID, models.InvoiceStatusSent)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.RecordPayment(ctx, intruder.ID, inv.ID, PaymentInput{Amount: dec("10")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, intruder.ID, inv.ID), ErrNotFound)

	// a missing id looks the same as a foreign one
	_, err = svc.Get(ctx, owner.ID, inv.ID+100)
	assert.ErrorIs(t, err, ErrNotFound)

	still, err := svc.Get(ctx, owner.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusDraft, still.Status)
}

func TestInvoiceUpdate_RoundTripKeepsTotals(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, owner.ID, created.ID, sampleDraft())
	require.NoError(t, err)
	assert.Equal(t, created.InvoiceNumber, updated.InvoiceNumber)
	assert.True(t, created.Subtotal.Equal(updated.Subtotal))
	assert.True(t, created.TotalTax.Equal(updated.TotalTax))
	assert.True(t, created.Total.Equal(updated.Total))
	assert.Len(t, updated.LineItems, 2)
}

func TestInvoiceUpdate_ReplacesLineItems(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)

	d := sampleDraft()
	d.Notes = "revised"
	d.LineItems = []LineInput{line("Consulting", "5", "100", "10")}
	updated, err := svc.Update(ctx, owner.ID, created.ID, d)
	require.NoError(t, err)
	require.Len(t, updated.LineItems, 1)
	assert.Equal(t, "550.00", updated.Total.StringFixed(2))
	assert.Equal(t, "revised", updated.Notes)
	assert.Equal(t, models.InvoiceStatusDraft, updated.Status)
	assert.Equal(t, models.SourceManual, updated.Source)

	var lines int64
	require.NoError(t, svc.db.Model(&models.LineItem{}).Where("invoice_id = ?", created.ID).Count(&lines).Error)
	assert.Equal(t, int64(1), lines)
}

func TestInvoiceUpdate_InvalidLeavesInvoiceUntouched(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)

	bad := sampleDraft()
	bad.LineItems = append(bad.LineItems, LineInput{Description: "no price"})
	_, err = svc.Update(ctx, owner.ID, created.ID, bad)
	requireViolation(t, err, "line_items[2].unit_price", "required")

	got, err := svc.Get(ctx, owner.ID, created.ID)
	require.NoError(t, err)
	assert.Len(t, got.LineItems, 2)
	assert.True(t, got.Total.Equal(created.Total))
}

func TestInvoiceUpdate_RejectsTransitionOutOfTerminalState(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	created, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, owner.ID, created.ID, models.InvoiceStatusCancelled)
	require.NoError(t, err)

	d := sampleDraft()
	d.Status = models.InvoiceStatusDraft
	_, err = svc.Update(ctx, owner.ID, created.ID, d)
	requireViolation(t, err, "status", "invalid_transition")
}

func TestInvoiceUpdateStatus(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, owner.ID, inv.ID, "archived")
	requireViolation(t, err, "status", "invalid")
	got, err := svc.Get(ctx, owner.ID, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusDraft, got.Status)

	got, err = svc.UpdateStatus(ctx, owner.ID, inv.ID, models.InvoiceStatusSent)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusSent, got.Status)

	// same state is a no-op
	_, err = svc.UpdateStatus(ctx, owner.ID, inv.ID, models.InvoiceStatusSent)
	require.NoError(t, err)

	got, err = svc.UpdateStatus(ctx, owner.ID, inv.ID, models.InvoiceStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, got.Status)

	_, err = svc.UpdateStatus(ctx, owner.ID, inv.ID, models.InvoiceStatusDraft)
	requireViolation(t, err, "status", "invalid_transition")
}

func TestInvoiceDelete_RemovesChildren(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)
	_, err = svc.RecordPayment(ctx, owner.ID, inv.ID, PaymentInput{Amount: dec("50")})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, owner.ID, inv.ID))
	_, err = svc.Get(ctx, owner.ID, inv.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var lines, payments int64
	require.NoError(t, svc.db.Model(&models.LineItem{}).Where("invoice_id = ?", inv.ID).Count(&lines).Error)
	require.NoError(t, svc.db.Model(&models.Payment{}).Where("invoice_id = ?", inv.ID).Count(&payments).Error)
	assert.Zero(t, lines)
	assert.Zero(t, payments)
}

func TestInvoiceList(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	acme := seedClient(t, svc.db, owner.ID, "Acme 100% Corp")
	other := seedUser(t, svc.db, "other@test")

	dates := []string{"2025-03-01", "2025-03-05", "2025-03-03"}
	var ids []uint
	for i, date := range dates {
		d := sampleDraft()
		d.InvoiceDate = date
		d.DueDate = ""
		if i == 1 {
			d.ClientID = &acme.ID
		}
		inv, err := svc.Create(ctx, owner.ID, d)
		require.NoError(t, err)
		ids = append(ids, inv.ID)
	}
	_, err := svc.Create(ctx, other.ID, sampleDraft())
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, owner.ID, ids[2], models.InvoiceStatusSent)
	require.NoError(t, err)

	page, err := svc.List(ctx, owner.ID, ListParams{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, 1, page.Pagination.TotalPages)
	require.Len(t, page.Invoices, 3)
	assert.Equal(t, ids[1], page.Invoices[0].ID, "newest invoice date first")
	assert.Equal(t, ids[0], page.Invoices[2].ID)

	page, err = svc.List(ctx, owner.ID, ListParams{SortBy: "invoice_date", SortOrder: "ASC", Limit: 2, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, ids[1], page.Invoices[0].ID)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	page, err = svc.List(ctx, owner.ID, ListParams{Search: "acme 100%"})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, ids[1], page.Invoices[0].ID)
	require.NotNil(t, page.Invoices[0].Client)

	page, err = svc.List(ctx, owner.ID, ListParams{Search: "inv-202503-000"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Pagination.Total)

	page, err = svc.List(ctx, owner.ID, ListParams{Search: "%"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Pagination.Total, "wildcards are literal")

	page, err = svc.List(ctx, owner.ID, ListParams{Status: models.InvoiceStatusSent})
	require.NoError(t, err)
	require.Len(t, page.Invoices, 1)
	assert.Equal(t, ids[2], page.Invoices[0].ID)

	page, err = svc.List(ctx, owner.ID, ListParams{ClientID: &acme.ID})
	require.NoError(t, err)
	assert.Len(t, page.Invoices, 1)
}

func TestInvoiceList_RejectsBadParams(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, owner.ID, ListParams{SortBy: "user_id"})
	requireViolation(t, err, "sort_by", "invalid")
	_, err = svc.List(ctx, owner.ID, ListParams{SortOrder: "sideways"})
	requireViolation(t, err, "sort_order", "invalid")
	_, err = svc.List(ctx, owner.ID, ListParams{Limit: 101})
	requireViolation(t, err, "limit", "out_of_range")
	_, err = svc.List(ctx, owner.ID, ListParams{Page: -1})
	requireViolation(t, err, "page", "out_of_range")
	_, err = svc.List(ctx, owner.ID, ListParams{Status: "archived"})
	requireViolation(t, err, "status", "invalid")
}

func TestInvoiceStats(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	seedClient(t, svc.db, owner.ID, "Stats Co")

	a, err := svc.Create(ctx, owner.ID, Draft{InvoiceDate: "2025-03-01", LineItems: []LineInput{line("a", "5", "100", "10")}})
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)
	_, err = svc.Create(ctx, owner.ID, Draft{InvoiceDate: "2025-03-02", LineItems: []LineInput{line("c", "1", "0.01", "")}})
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, owner.ID, a.ID, models.InvoiceStatusSent)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, owner.ID, a.ID, models.InvoiceStatusPaid)
	require.NoError(t, err)

	stats, err := svc.Stats(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "550.00", stats.TotalRevenue.StringFixed(2))
	// (550 + 130 + 0.01) / 3 = 226.67
	assert.Equal(t, "226.67", stats.AverageTotal.StringFixed(2))
	assert.Equal(t, int64(3), stats.TotalInvoices)
	assert.Equal(t, int64(1), stats.TotalClients)
	assert.Equal(t, int64(1), stats.Paid)
	assert.Equal(t, int64(2), stats.Draft)
	assert.Zero(t, stats.Overdue)

	other := seedUser(t, svc.db, "empty@test")
	empty, err := svc.Stats(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, empty.AverageTotal.IsZero())
	assert.Zero(t, empty.TotalInvoices)
}

func TestRecordPayment(t *testing.T) {
	svc, owner := newTestInvoiceService(t)
	ctx := context.Background()
	inv, err := svc.Create(ctx, owner.ID, sampleDraft())
	require.NoError(t, err)

	_, err = svc.RecordPayment(ctx, owner.ID, inv.ID, PaymentInput{})
	requireViolation(t, err, "amount", "required")
	_, err = svc.RecordPayment(ctx, owner.ID, inv.ID, PaymentInput{Amount: dec("0")})
	requireViolation(t, err, "amount", "must_be_positive")

	p, err := svc.RecordPayment(ctx, owner.ID, inv.ID, PaymentInput{Amount: dec("100.50"), PaymentMethod: "wire"})
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", p.PaymentDate.Format(DateLayout))

	got, err := svc.Get(ctx, owner.ID, inv.ID)
	require.NoError(t, err)
	require.Len(t, got.Payments, 1)
	assert.Equal(t, "100.50", got.Payments[0].Amount.StringFixed(2))
	assert.Equal(t, "130.00", got.Total.StringFixed(2))
}

func TestMarkOverdue(t *testing.T) {
	conn := setupTestDB(t)
	owner := seedUser(t, conn, "sweep@test")
	ctx := context.Background()
	march := NewInvoiceService(conn, WithClock(fixedClock(2025, time.March, 10)))

	due := func(date string, status models.InvoiceStatus) uint {
		d := sampleDraft()
		d.DueDate = date
		inv, err := march.Create(ctx, owner.ID, d)
		require.NoError(t, err)
		if status != models.InvoiceStatusDraft {
			_, err = march.UpdateStatus(ctx, owner.ID, inv.ID, status)
			require.NoError(t, err)
		}
		return inv.ID
	}
	pastSent := due("2025-03-20", models.InvoiceStatusSent)
	pastDraft := due("2025-03-20", models.InvoiceStatusDraft)
	futureSent := due("2025-05-01", models.InvoiceStatusSent)

	april := NewInvoiceService(conn, WithClock(fixedClock(2025, time.April, 1)))
	marked, err := april.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, marked)

	statusOf := func(id uint) models.InvoiceStatus {
		inv, err := april.Get(ctx, owner.ID, id)
		require.NoError(t, err)
		return inv.Status
	}
	assert.Equal(t, models.InvoiceStatusOverdue, statusOf(pastSent))
	assert.Equal(t, models.InvoiceStatusDraft, statusOf(pastDraft))
	assert.Equal(t, models.InvoiceStatusSent, statusOf(futureSent))

	marked, err = april.MarkOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, marked)
}
