package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/validation"
	"github.com/shopspring/decimal"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// DefaultCurrency applies when a draft names none.
const DefaultCurrency = "USD"

// Draft is the invoice shape produced by manual entry and by the text and image
// normalizers. Create and Update accept nothing else.
type Draft struct {
	ClientID        *uint                `json:"client_id"`
	ClientName      string               `json:"client_name,omitempty"`
	InvoiceDate     string               `json:"invoice_date"`
	DueDate         string               `json:"due_date,omitempty"`
	Currency        string               `json:"currency"`
	Status          models.InvoiceStatus `json:"status,omitempty"`
	Source          models.Source        `json:"source,omitempty"`
	ConfidenceScore *float64             `json:"confidence_score,omitempty"`
	PaymentTerms    string               `json:"payment_terms"`
	Notes           string               `json:"notes"`
	LineItems       []LineInput          `json:"line_items"`
}

// LineInput is one raw line item. Absent numbers decode as invalid NullDecimals.
type LineInput struct {
	Description string              `json:"description"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	TaxRate     decimal.NullDecimal `json:"tax_rate"`
	SortOrder   *int                `json:"sort_order,omitempty"`
}

var (
	hundred       = decimal.NewFromInt(100)
	maxAmount     = decimal.RequireFromString("9999999999.99")
	sourceValues  = []string{string(models.SourceManual), string(models.SourceNLP), string(models.SourceOCR)}
	statusStrings = func() []string {
		out := make([]string, len(models.InvoiceStatuses))
		for i, s := range models.InvoiceStatuses {
			out[i] = string(s)
		}
		return out
	}()
)

// checkedDraft is a Draft that passed validation, with defaults applied and totals computed.
type checkedDraft struct {
	clientID     *uint
	invoiceDate  time.Time
	dueDate      *time.Time
	currency     string
	status       models.InvoiceStatus // empty on update means keep
	source       models.Source        // empty on update means keep
	confidence   *float64
	paymentTerms string
	notes        string
	lines        []models.LineItem
	totals       Totals
}

// check validates d. On create, status and source fall back to draft and manual;
// on update an empty value keeps the stored one.
func (d Draft) check(creating bool) (*checkedDraft, error) {
	v := make(validation.Violations)
	out := &checkedDraft{
		clientID:     d.ClientID,
		currency:     strings.ToUpper(strings.TrimSpace(d.Currency)),
		status:       d.Status,
		source:       d.Source,
		confidence:   d.ConfidenceScore,
		paymentTerms: strings.TrimSpace(d.PaymentTerms),
		notes:        strings.TrimSpace(d.Notes),
	}

	if out.clientID != nil && *out.clientID == 0 {
		out.clientID = nil
	}

	if strings.TrimSpace(d.InvoiceDate) == "" {
		v.Add("invoice_date", "required")
	} else if t, err := ParseDate(d.InvoiceDate); err != nil {
		v.Add("invoice_date", "invalid_date")
	} else {
		out.invoiceDate = t
	}
	if strings.TrimSpace(d.DueDate) != "" {
		t, err := ParseDate(d.DueDate)
		switch {
		case err != nil:
			v.Add("due_date", "invalid_date")
		case !out.invoiceDate.IsZero() && t.Before(out.invoiceDate):
			v.Add("due_date", "before_invoice_date")
		default:
			out.dueDate = &t
		}
	}

	if out.currency == "" {
		out.currency = DefaultCurrency
	}
	validation.Currency("currency", out.currency, v)

	if creating && out.status == "" {
		out.status = models.InvoiceStatusDraft
	}
	if out.status != "" {
		validation.OneOf("status", string(out.status), statusStrings, v)
	}
	if creating && out.source == "" {
		out.source = models.SourceManual
	}
	if out.source != "" {
		validation.OneOf("source", string(out.source), sourceValues, v)
	}
	if out.confidence != nil {
		validation.RangeFloat("confidence_score", *out.confidence, 0, 1, v)
	}
	validation.MaxLength("payment_terms", out.paymentTerms, 500, v)

	if len(d.LineItems) == 0 {
		v.Add("line_items", "required")
	}
	for i, item := range d.LineItems {
		v.Merge(fmt.Sprintf("line_items[%d].", i), item.check())
	}

	if err := invalid(v); err != nil {
		return nil, err
	}
	out.lines, out.totals = ComputeTotals(d.LineItems)
	return out, nil
}

func (li LineInput) check() validation.Violations {
	v := make(validation.Violations)
	validation.Required("description", li.Description, v)
	validation.MaxLength("description", li.Description, 500, v)

	if li.Quantity.Valid {
		// zero is read as "absent" and defaults to 1
		validation.NonNegativeDecimal("quantity", li.Quantity.Decimal, v)
		validation.MaxPlaces("quantity", li.Quantity.Decimal, 3, v)
	}
	if !li.UnitPrice.Valid {
		v.Add("unit_price", "required")
	} else {
		validation.NonNegativeDecimal("unit_price", li.UnitPrice.Decimal, v)
		validation.RangeDecimal("unit_price", li.UnitPrice.Decimal, decimal.Zero, maxAmount, v)
		validation.MaxPlaces("unit_price", li.UnitPrice.Decimal, 4, v)
	}
	if li.TaxRate.Valid {
		validation.RangeDecimal("tax_rate", li.TaxRate.Decimal, decimal.Zero, hundred, v)
		validation.MaxPlaces("tax_rate", li.TaxRate.Decimal, 3, v)
	}
	return v
}

func (c *checkedDraft) lineItems(invoiceID uint) []models.LineItem {
	lines := make([]models.LineItem, len(c.lines))
	for i, l := range c.lines {
		l.InvoiceID = invoiceID
		lines[i] = l
	}
	return lines
}

func (c *checkedDraft) invoice(ownerID uint) *models.Invoice {
	return &models.Invoice{
		UserID:          ownerID,
		ClientID:        c.clientID,
		InvoiceDate:     c.invoiceDate,
		DueDate:         c.dueDate,
		Currency:        c.currency,
		Subtotal:        c.totals.Subtotal,
		TotalTax:        c.totals.TotalTax,
		Total:           c.totals.Total,
		Status:          c.status,
		Source:          c.source,
		ConfidenceScore: c.confidence,
		PaymentTerms:    c.paymentTerms,
		Notes:           c.notes,
		LineItems:       c.lineItems(0),
	}
}

// ParseDate reads "2006-01-02" or an RFC 3339 timestamp and returns the UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q", s)
		}
	}
	return dateOf(t), nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
