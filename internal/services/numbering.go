package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/diewo77/smart-invoices/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const invoiceNumberPrefix = "INV"

// Prefix returns the numbering prefix for the month of t, e.g. "INV-202503".
func Prefix(t time.Time) string {
	return fmt.Sprintf("%s-%04d%02d", invoiceNumberPrefix, t.Year(), int(t.Month()))
}

// FormatNumber joins prefix and sequence, zero-padding the sequence to four digits.
func FormatNumber(prefix string, seq int) string {
	return fmt.Sprintf("%s-%04d", prefix, seq)
}

// ParseSequence returns the trailing sequence of an invoice number under prefix.
// A missing, foreign or non-numeric sequence parses as 0.
func ParseSequence(prefix, number string) int {
	tail, ok := strings.CutPrefix(number, prefix+"-")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(tail)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// nextInvoiceNumber reserves the next number for the month of at. It must run inside
// the transaction that inserts the invoice: the counter row stays locked until that
// transaction ends, so creators in the same month are serialized. A missing counter
// row is seeded from the most recently created invoice carrying the prefix; two
// creators racing to seed it collide on the primary key and the loser is retried.
// With reseed set, an existing counter is also moved past the highest stored number,
// which repairs a counter left behind by rows written outside this function.
func nextInvoiceNumber(tx *gorm.DB, at time.Time, reseed bool) (string, error) {
	prefix := Prefix(at)

	var seq models.InvoiceSequence
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("prefix = ?", prefix).
		Take(&seq).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		last, err := latestSequence(tx, prefix)
		if err != nil {
			return "", err
		}
		seq = models.InvoiceSequence{Prefix: prefix, LastValue: last + 1}
		if err := tx.Create(&seq).Error; err != nil {
			return "", fmt.Errorf("seed sequence %s: %w", prefix, err)
		}
	case err != nil:
		return "", fmt.Errorf("lock sequence %s: %w", prefix, err)
	default:
		if reseed {
			last, err := highestSequence(tx, prefix)
			if err != nil {
				return "", err
			}
			seq.LastValue = max(seq.LastValue, last)
		}
		seq.LastValue++
		if err := tx.Model(&seq).Update("last_value", seq.LastValue).Error; err != nil {
			return "", fmt.Errorf("advance sequence %s: %w", prefix, err)
		}
	}
	return FormatNumber(prefix, seq.LastValue), nil
}

func latestSequence(tx *gorm.DB, prefix string) (int, error) {
	var last models.Invoice
	err := tx.Select("invoice_number").
		Where("invoice_number LIKE ?", prefix+"-%").
		Order("created_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&last).Error
	if err != nil {
		return 0, fmt.Errorf("find latest invoice for %s: %w", prefix, err)
	}
	return ParseSequence(prefix, last.InvoiceNumber), nil
}

// highestSequence scans every number under prefix. Sequences past 9999 are wider,
// so a string MAX would not order them.
func highestSequence(tx *gorm.DB, prefix string) (int, error) {
	var numbers []string
	err := tx.Model(&models.Invoice{}).
		Where("invoice_number LIKE ?", prefix+"-%").
		Pluck("invoice_number", &numbers).Error
	if err != nil {
		return 0, fmt.Errorf("scan invoice numbers for %s: %w", prefix, err)
	}
	highest := 0
	for _, n := range numbers {
		highest = max(highest, ParseSequence(prefix, n))
	}
	return highest, nil
}
