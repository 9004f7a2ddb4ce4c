package models

import (
	"encoding/json"
	"time"

	"github.com/diewo77/smart-invoices/internal/money"
	"github.com/shopspring/decimal"
)

// Invoice represents a billing invoice. Subtotal, TotalTax and Total are derived
// from the line items and never set directly by callers.
type Invoice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// UserID is the owner of this invoice (for multi-tenant isolation)
	UserID uint `gorm:"index;not null" json:"user_id"`
	User   User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	InvoiceNumber string `gorm:"size:50;uniqueIndex;not null" json:"invoice_number"`

	// Optional client; deleting the client leaves the invoice with a NULL reference.
	ClientID *uint   `gorm:"index" json:"client_id"`
	Client   *Client `gorm:"foreignKey:ClientID;constraint:OnDelete:SET NULL" json:"client,omitempty"`

	InvoiceDate time.Time  `gorm:"type:date;not null;index" json:"invoice_date"`
	DueDate     *time.Time `gorm:"type:date" json:"due_date"`

	Currency string          `gorm:"size:3;not null" json:"currency"`
	Subtotal decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"subtotal"`
	TotalTax decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total_tax"`
	Total    decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"total"`

	Status          InvoiceStatus `gorm:"size:20;not null;index" json:"status"`
	Source          Source        `gorm:"size:10;not null" json:"source"`
	ConfidenceScore *float64      `json:"confidence_score,omitempty"`

	PaymentTerms string `gorm:"size:500" json:"payment_terms"`
	Notes        string `gorm:"type:text" json:"notes"`

	LineItems []LineItem `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"line_items"`
	Payments  []Payment  `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"payments"`
}

// MarshalJSON renders amounts with two decimal places.
func (i Invoice) MarshalJSON() ([]byte, error) {
	type plain Invoice
	return json.Marshal(struct {
		plain
		Subtotal string `json:"subtotal"`
		TotalTax string `json:"total_tax"`
		Total    string `json:"total"`
	}{
		plain:    plain(i),
		Subtotal: money.Format(i.Subtotal),
		TotalTax: money.Format(i.TotalTax),
		Total:    money.Format(i.Total),
	})
}

// LineItem is one billable row of an invoice.
type LineItem struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	InvoiceID uint `gorm:"index;not null" json:"invoice_id"`

	Description string          `gorm:"size:500;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"type:decimal(12,3);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(14,4);not null" json:"unit_price"`
	TaxRate     decimal.Decimal `gorm:"type:decimal(6,3);not null" json:"tax_rate"`
	LineTotal   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"line_total"`
	TaxAmount   decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"tax_amount"`

	SortOrder int `gorm:"not null" json:"sort_order"`
}

// MarshalJSON renders line amounts with two decimal places.
func (li LineItem) MarshalJSON() ([]byte, error) {
	type plain LineItem
	return json.Marshal(struct {
		plain
		LineTotal string `json:"line_total"`
		TaxAmount string `json:"tax_amount"`
	}{
		plain:     plain(li),
		LineTotal: money.Format(li.LineTotal),
		TaxAmount: money.Format(li.TaxAmount),
	})
}

// Payment records money received against an invoice.
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	InvoiceID uint `gorm:"index;not null" json:"invoice_id"`

	Amount          decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	PaymentDate     time.Time       `gorm:"type:date;not null" json:"payment_date"`
	PaymentMethod   string          `gorm:"size:50" json:"payment_method,omitempty"`
	ReferenceNumber string          `gorm:"size:100" json:"reference_number,omitempty"`
	Notes           string          `gorm:"type:text" json:"notes,omitempty"`
}

// InvoiceSequence is the per-prefix counter behind invoice numbers.
type InvoiceSequence struct {
	Prefix    string `gorm:"primaryKey;size:20"`
	LastValue int    `gorm:"not null"`
	UpdatedAt time.Time
}

// All lists the models managed by AutoMigrate, parents first.
func All() []any {
	return []any{
		&User{},
		&Client{},
		&Invoice{},
		&LineItem{},
		&Payment{},
		&InvoiceSequence{},
	}
}

// MarshalJSON renders the amount with two decimal places.
func (p Payment) MarshalJSON() ([]byte, error) {
	type plain Payment
	return json.Marshal(struct {
		plain
		Amount string `json:"amount"`
	}{plain: plain(p), Amount: money.Format(p.Amount)})
}
