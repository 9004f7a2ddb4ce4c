package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixAndFormat(t *testing.T) {
	at := time.Date(2025, time.March, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "INV-202503", Prefix(at))
	assert.Equal(t, "INV-202503-0001", FormatNumber(Prefix(at), 1))
	assert.Equal(t, "INV-202503-12345", FormatNumber(Prefix(at), 12345))
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		number string
		want   int
	}{
		{"INV-202503-0007", 7},
		{"INV-202503-12345", 12345},
		{"INV-202504-0007", 0},
		{"INV-202503-abc", 0},
		{"INV-202503-", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSequence("INV-202503", tt.number), tt.number)
	}
}

func TestCreate_NumbersPerMonth(t *testing.T) {
	conn := setupTestDB(t)
	owner := seedUser(t, conn, "num@test")
	ctx := context.Background()
	draft := Draft{InvoiceDate: "2025-03-01", LineItems: []LineInput{line("Item", "1", "10", "")}}

	march := NewInvoiceService(conn, WithClock(fixedClock(2025, time.March, 10)))
	first, err := march.Create(ctx, owner.ID, draft)
	require.NoError(t, err)
	second, err := march.Create(ctx, owner.ID, draft)
	require.NoError(t, err)
	assert.Equal(t, "INV-202503-0001", first.InvoiceNumber)
	assert.Equal(t, "INV-202503-0002", second.InvoiceNumber)

	april := NewInvoiceService(conn, WithClock(fixedClock(2025, time.April, 1)))
	third, err := april.Create(ctx, owner.ID, draft)
	require.NoError(t, err)
	assert.Equal(t, "INV-202504-0001", third.InvoiceNumber)
}

func TestCreate_SeedsCounterFromExistingInvoices(t *testing.T) {
	conn := setupTestDB(t)
	owner := seedUser(t, conn, "seed@test")
	legacy := models.Invoice{
		UserID:        owner.ID,
		InvoiceNumber: "INV-202503-0041",
		InvoiceDate:   time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
		Currency:      "USD",
		Subtotal:      decimal.Zero,
		TotalTax:      decimal.Zero,
		Total:         decimal.Zero,
		Status:        models.InvoiceStatusDraft,
		Source:        models.SourceManual,
	}
	require.NoError(t, conn.Create(&legacy).Error)

	svc := NewInvoiceService(conn, WithClock(fixedClock(2025, time.March, 20)))
	inv, err := svc.Create(context.Background(), owner.ID, Draft{InvoiceDate: "2025-03-01", LineItems: []LineInput{line("Item", "1", "1", "")}})
	require.NoError(t, err)
	assert.Equal(t, "INV-202503-0042", inv.InvoiceNumber)
}

func TestCreate_RetriesPastStaleCounter(t *testing.T) {
	conn := setupTestDB(t)
	owner := seedUser(t, conn, "stale@test")
	svc := NewInvoiceService(conn, WithClock(fixedClock(2025, time.March, 5)))
	ctx := context.Background()
	draft := Draft{InvoiceDate: "2025-03-01", LineItems: []LineInput{line("Item", "1", "1", "")}}

	_, err := svc.Create(ctx, owner.ID, draft)
	require.NoError(t, err)
	// roll the counter back so the next candidate collides with the stored number
	require.NoError(t, conn.Model(&models.InvoiceSequence{}).
		Where("prefix = ?", "INV-202503").
		Update("last_value", 0).Error)

	inv, err := svc.Create(ctx, owner.ID, draft)
	require.NoError(t, err)
	assert.Equal(t, "INV-202503-0002", inv.InvoiceNumber)
}

func TestCreate_ReseedsPastHighestNumberOutOfCreationOrder(t *testing.T) {
	conn := setupTestDB(t)
	owner := seedUser(t, conn, "order@test")
	imported := func(number string, created time.Time) {
		inv := models.Invoice{
			CreatedAt:     created,
			UserID:        owner.ID,
			InvoiceNumber: number,
			InvoiceDate:   time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC),
			Currency:      "USD",
			Status:        models.InvoiceStatusDraft,
			Source:        models.SourceManual,
		}
		require.NoError(t, conn.Create(&inv).Error)
	}
	// the higher number is the older row
	imported("INV-202503-0005", time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC))
	imported("INV-202503-0002", time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC))

	svc := NewInvoiceService(conn, WithClock(fixedClock(2025, time.March, 10)))
	draft := Draft{InvoiceDate: "2025-03-10", LineItems: []LineInput{line("Item", "1", "1", "")}}
	var got []string
	for i := 0; i < 5; i++ {
		inv, err := svc.Create(context.Background(), owner.ID, draft)
		require.NoError(t, err, "create %d", i)
		got = append(got, inv.InvoiceNumber)
	}
	assert.Equal(t, []string{
		"INV-202503-0003",
		"INV-202503-0004",
		"INV-202503-0006",
		"INV-202503-0007",
		"INV-202503-0008",
	}, got)
}

func TestCreate_ConflictAfterMaxAttempts(t *testing.T) {
	conn := setupTestDB(t)
	owner := seedUser(t, conn, "conflict@test")
	svc := NewInvoiceService(conn, WithClock(fixedClock(2025, time.March, 5)), WithMaxAttempts(1))
	ctx := context.Background()
	draft := Draft{InvoiceDate: "2025-03-01", LineItems: []LineInput{line("Item", "1", "1", "")}}

	_, err := svc.Create(ctx, owner.ID, draft)
	require.NoError(t, err)
	require.NoError(t, conn.Model(&models.InvoiceSequence{}).
		Where("prefix = ?", "INV-202503").
		Update("last_value", 0).Error)

	_, err = svc.Create(ctx, owner.ID, draft)
	require.Error(t, err)
	assert.True(t, IsConflict(err))
	assert.True(t, IsRetryable(err))

	var count int64
	require.NoError(t, conn.Model(&models.Invoice{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreate_ConcurrentNumbersAreUnique(t *testing.T) {
	conn := setupTestDB(t)
	owner := seedUser(t, conn, "race@test")
	svc := NewInvoiceService(conn, WithClock(fixedClock(2025, time.June, 15)))
	draft := Draft{InvoiceDate: "2025-03-01", LineItems: []LineInput{line("Item", "1", "1", "")}}

	const n = 12
	numbers := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inv, err := svc.Create(context.Background(), owner.ID, draft)
			errs[i] = err
			if err == nil {
				numbers[i] = inv.InvoiceNumber
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.False(t, seen[numbers[i]], "duplicate %s", numbers[i])
		seen[numbers[i]] = true
	}
	for seq := 1; seq <= n; seq++ {
		assert.True(t, seen[FormatNumber("INV-202506", seq)], "missing sequence %d", seq)
	}
}
