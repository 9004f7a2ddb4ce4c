package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/diewo77/smart-invoices/internal/config"
	"github.com/diewo77/smart-invoices/internal/db"
	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		DSNValue: fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
		Retries:  1,
	}
	conn, err := db.Open(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(conn))
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return conn
}

func seedUser(t *testing.T, conn *gorm.DB, email string) models.User {
	t.Helper()
	u := models.User{Email: email, Password: "hash"}
	require.NoError(t, conn.Create(&u).Error)
	return u
}

func seedClient(t *testing.T, conn *gorm.DB, ownerID uint, name string) models.Client {
	t.Helper()
	c := models.Client{UserID: ownerID, Name: name}
	require.NoError(t, conn.Create(&c).Error)
	return c
}

// fixedClock returns a clock pinned to the given UTC date at noon.
func fixedClock(year int, month time.Month, day int) func() time.Time {
	return func() time.Time { return time.Date(year, month, day, 12, 0, 0, 0, time.UTC) }
}

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func line(desc, qty, price, tax string) LineInput {
	li := LineInput{Description: desc, UnitPrice: dec(price)}
	if qty != "" {
		li.Quantity = dec(qty)
	}
	if tax != "" {
		li.TaxRate = dec(tax)
	}
	return li
}
