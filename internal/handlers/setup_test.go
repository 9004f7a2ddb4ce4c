package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/diewo77/smart-invoices/auth"
	"github.com/diewo77/smart-invoices/internal/config"
	"github.com/diewo77/smart-invoices/internal/db"
	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/services"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := config.DatabaseConfig{
		Driver:   "sqlite",
		DSNValue: fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
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
	u := models.User{Email: email, Password: "hash", FullName: "Ada Lovelace", CompanyName: "Analytical Ltd"}
	require.NoError(t, conn.Create(&u).Error)
	return u
}

func testClock() time.Time { return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC) }

// testAPI wires the JSON routes over a fresh database. Requests carry the user id in
// their context instead of a bearer token.
type testAPI struct {
	db       *gorm.DB
	mux      *http.ServeMux
	invoices *services.InvoiceService
	clients  *services.ClientService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	conn := setupTestDB(t)
	clients := services.NewClientService(conn)
	invoices := services.NewInvoiceService(conn, services.WithClock(testClock))
	users := services.NewUserService(conn)

	ch := NewClientHandler(clients)
	ih := NewInvoiceHandler(invoices)
	ph := NewPDFHandler(invoices, users)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/clients", ch.List)
	mux.HandleFunc("POST /api/clients", ch.Create)
	mux.HandleFunc("GET /api/clients/{id}", ch.Get)
	mux.HandleFunc("PUT /api/clients/{id}", ch.Update)
	mux.HandleFunc("DELETE /api/clients/{id}", ch.Delete)
	mux.HandleFunc("GET /api/invoices", ih.List)
	mux.HandleFunc("POST /api/invoices", ih.Create)
	mux.HandleFunc("GET /api/invoices/stats", ih.Stats)
	mux.HandleFunc("GET /api/invoices/{id}", ih.Get)
	mux.HandleFunc("PUT /api/invoices/{id}", ih.Update)
	mux.HandleFunc("DELETE /api/invoices/{id}", ih.Delete)
	mux.HandleFunc("PATCH /api/invoices/{id}/status", ih.UpdateStatus)
	mux.HandleFunc("POST /api/invoices/{id}/payments", ih.RecordPayment)
	mux.HandleFunc("GET /api/pdf/invoices/{id}", ph.Invoice)

	return &testAPI{db: conn, mux: mux, invoices: invoices, clients: clients}
}

func (a *testAPI) do(t *testing.T, uid uint, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	return serve(t, a.mux, uid, method, path, body)
}

func serve(t *testing.T, h http.Handler, uid uint, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != 0 {
		req = req.WithContext(auth.WithUserID(req.Context(), uid))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func errorDetails(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	body := decode(t, rec)
	details, _ := body["details"].(map[string]any)
	return details
}
