// Package pdf renders invoices as PDF documents with maroto.
package pdf

import (
	"fmt"
	"strings"

	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/money"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Party is the issuer or the client block.
type Party struct {
	Name    string
	Company string
	Email   string
	Phone   string
	Address string
	TaxID   string
}

// Line is one row of the item table.
type Line struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
	Total       decimal.Decimal
}

// Document holds everything printed on an invoice.
type Document struct {
	Number       string
	Status       string
	Currency     string
	InvoiceDate  string
	DueDate      string
	PaymentTerms string
	Notes        string
	Issuer       Party
	Client       Party
	Lines        []Line
	Subtotal     decimal.Decimal
	TotalTax     decimal.Decimal
	Total        decimal.Decimal
}

// FromInvoice maps a loaded invoice and its owner to a Document.
func FromInvoice(inv *models.Invoice, issuer *models.User) Document {
	doc := Document{
		Number:       inv.InvoiceNumber,
		Status:       string(inv.Status),
		Currency:     inv.Currency,
		InvoiceDate:  inv.InvoiceDate.Format(dateLayout),
		PaymentTerms: inv.PaymentTerms,
		Notes:        inv.Notes,
		Subtotal:     inv.Subtotal,
		TotalTax:     inv.TotalTax,
		Total:        inv.Total,
	}
	if inv.DueDate != nil {
		doc.DueDate = inv.DueDate.Format(dateLayout)
	}
	if issuer != nil {
		doc.Issuer = Party{Name: issuer.FullName, Company: issuer.CompanyName, Email: issuer.Email}
	}
	if inv.Client != nil {
		doc.Client = Party{
			Name:    inv.Client.Name,
			Email:   inv.Client.Email,
			Phone:   inv.Client.Phone,
			Address: inv.Client.Address,
			TaxID:   inv.Client.TaxID,
		}
	}
	for _, li := range inv.LineItems {
		doc.Lines = append(doc.Lines, Line{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice,
			TaxRate:     li.TaxRate,
			Total:       li.LineTotal,
		})
	}
	return doc
}

var (
	small     = props.Text{Size: 9}
	smallBold = props.Text{Size: 9, Style: fontstyle.Bold}
	right     = props.Text{Size: 9, Align: align.Right}
	rightBold = props.Text{Size: 9, Style: fontstyle.Bold, Align: align.Right}
	grey      = &props.Color{Red: 230, Green: 230, Blue: 230}
)

// Render produces the PDF bytes for doc.
func Render(doc Document) ([]byte, error) {
	cfg := config.NewBuilder().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()
	m := maroto.New(cfg)

	m.AddRows(header(doc)...)
	m.AddRows(line.NewRow(6))
	m.AddRows(parties(doc)...)
	m.AddRows(line.NewRow(6))
	m.AddRows(items(doc)...)
	m.AddRows(totals(doc)...)
	if doc.PaymentTerms != "" || doc.Notes != "" {
		m.AddRows(text.NewRow(8, ""))
		if doc.PaymentTerms != "" {
			m.AddRows(text.NewRow(6, "Payment terms: "+doc.PaymentTerms, small))
		}
		if doc.Notes != "" {
			m.AddRows(text.NewRow(6, doc.Notes, small))
		}
	}

	out, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate pdf: %w", err)
	}
	return out.GetBytes(), nil
}

func header(doc Document) []core.Row {
	issuer := firstNonEmpty(doc.Issuer.Company, doc.Issuer.Name)
	rows := []core.Row{
		row.New(12).Add(
			text.NewCol(7, issuer, props.Text{Size: 14, Style: fontstyle.Bold}),
			text.NewCol(5, "INVOICE", props.Text{Size: 18, Style: fontstyle.Bold, Align: align.Right}),
		),
		row.New(5).Add(
			text.NewCol(7, joinNonEmpty(" | ", doc.Issuer.Name, doc.Issuer.Email), small),
			text.NewCol(5, doc.Number, rightBold),
		),
		row.New(5).Add(
			col.New(7),
			text.NewCol(5, "Date: "+doc.InvoiceDate, right),
		),
	}
	if doc.DueDate != "" {
		rows = append(rows, row.New(5).Add(col.New(7), text.NewCol(5, "Due: "+doc.DueDate, right)))
	}
	return rows
}

func parties(doc Document) []core.Row {
	c := doc.Client
	rows := []core.Row{text.NewRow(6, "Bill to", smallBold)}
	if c.Name == "" {
		return append(rows, text.NewRow(5, "-", small))
	}
	for _, s := range []string{c.Name, c.Address, c.Email, c.Phone} {
		if s != "" {
			rows = append(rows, text.NewRow(5, s, small))
		}
	}
	if c.TaxID != "" {
		rows = append(rows, text.NewRow(5, "Tax ID: "+c.TaxID, small))
	}
	return rows
}

func items(doc Document) []core.Row {
	rows := []core.Row{
		row.New(7).Add(
			text.NewCol(6, "Description", smallBold),
			text.NewCol(1, "Qty", rightBold),
			text.NewCol(2, "Unit price", rightBold),
			text.NewCol(1, "Tax %", rightBold),
			text.NewCol(2, "Amount", rightBold),
		).WithStyle(&props.Cell{BackgroundColor: grey}),
	}
	for _, l := range doc.Lines {
		rows = append(rows, row.New(6).Add(
			text.NewCol(6, l.Description, small),
			text.NewCol(1, l.Quantity.String(), right),
			text.NewCol(2, l.UnitPrice.StringFixed(2), right),
			text.NewCol(1, l.TaxRate.String(), right),
			text.NewCol(2, money.Format(l.Total), right),
		))
	}
	return rows
}

func totals(doc Document) []core.Row {
	amount := func(label string, d decimal.Decimal, style props.Text) core.Row {
		return row.New(6).Add(
			col.New(7),
			text.NewCol(3, label, style),
			text.NewCol(2, money.Format(d)+" "+doc.Currency, style),
		)
	}
	return []core.Row{
		line.NewRow(4),
		amount("Subtotal", doc.Subtotal, right),
		amount("Tax", doc.TotalTax, right),
		amount("Total", doc.Total, rightBold),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}
