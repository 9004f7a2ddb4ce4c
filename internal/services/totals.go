package services

import (
	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/money"
	"github.com/shopspring/decimal"
)

// Totals are the invoice-level amounts derived from its line items.
type Totals struct {
	Subtotal decimal.Decimal
	TotalTax decimal.Decimal
	Total    decimal.Decimal
}

// ComputeTotals derives every line's total and tax and aggregates them in input order.
//
// Quantity defaults to 1 when absent or zero and tax rate to 0 when absent. Unit
// price must be validated by the caller. Each line amount is computed exactly and
// rounded once to the currency unit because that is the value stored; the
// aggregates are exact sums of the stored line values and total is derived once
// from them. An empty input yields zero totals.
func ComputeTotals(items []LineInput) ([]models.LineItem, Totals) {
	lines := make([]models.LineItem, 0, len(items))
	subtotal, totalTax := decimal.Zero, decimal.Zero
	for i, item := range items {
		qty := item.quantity()
		rate := item.taxRate()
		price := item.UnitPrice.Decimal

		exact := money.Mul(qty, price)
		line := models.LineItem{
			Description: item.Description,
			Quantity:    qty,
			UnitPrice:   price,
			TaxRate:     rate,
			LineTotal:   money.Round(exact),
			TaxAmount:   money.Round(money.Percent(exact, rate)),
			SortOrder:   i,
		}
		if item.SortOrder != nil {
			line.SortOrder = *item.SortOrder
		}
		subtotal = money.Add(subtotal, line.LineTotal)
		totalTax = money.Add(totalTax, line.TaxAmount)
		lines = append(lines, line)
	}
	return lines, Totals{
		Subtotal: subtotal,
		TotalTax: totalTax,
		Total:    money.Add(subtotal, totalTax),
	}
}

func (li LineInput) quantity() decimal.Decimal {
	if !li.Quantity.Valid || li.Quantity.Decimal.IsZero() {
		return decimal.NewFromInt(1)
	}
	return li.Quantity.Decimal
}

func (li LineInput) taxRate() decimal.Decimal {
	if !li.TaxRate.Valid {
		return decimal.Zero
	}
	return li.TaxRate.Decimal
}
