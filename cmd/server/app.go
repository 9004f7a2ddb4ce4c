package main

import (
	"net/http"

	"github.com/diewo77/smart-invoices/internal/handlers"
	"github.com/diewo77/smart-invoices/internal/logger"
	"github.com/diewo77/smart-invoices/internal/middleware"
	"gorm.io/gorm"
)

// App is the main application handler that sets up all routes.
type App struct {
	mux       *http.ServeMux
	db        *gorm.DB
	routerCfg *RouterConfig
	handler   http.Handler
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, routerCfg *RouterConfig) *App {
	app := &App{
		mux:       http.NewServeMux(),
		db:        db,
		routerCfg: routerCfg,
	}
	app.setupRoutes()
	app.handler = middleware.Chain(app.mux,
		middleware.RequestID(logger.WithComponent("http")),
		middleware.Logging,
		middleware.Recover,
		routerCfg.Tokens.Middleware,
	)
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.handler.ServeHTTP(w, r)
}

// setupRoutes configures all application routes.
func (a *App) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Public routes (no auth required)
	// ─────────────────────────────────────────────────────────────────────────
	ah := a.routerCfg.AuthHandler

	a.mux.HandleFunc("GET /health", handlers.Health(nil))
	a.mux.HandleFunc("GET /healthz", handlers.Health(a.ping))
	a.mux.HandleFunc("POST /api/auth/register", ah.Register)
	a.mux.HandleFunc("POST /api/auth/login", ah.Login)

	// ─────────────────────────────────────────────────────────────────────────
	// Authenticated routes (require a live bearer token)
	// ─────────────────────────────────────────────────────────────────────────
	ch := a.routerCfg.ClientHandler
	ih := a.routerCfg.InvoiceHandler
	xh := a.routerCfg.ExtractHandler
	ph := a.routerCfg.PDFHandler

	a.mux.Handle("GET /api/auth/me", a.requireAuth(ah.Me))

	// Clients
	a.mux.Handle("GET /api/clients", a.requireAuth(ch.List))
	a.mux.Handle("POST /api/clients", a.requireAuth(ch.Create))
	a.mux.Handle("GET /api/clients/{id}", a.requireAuth(ch.Get))
	a.mux.Handle("PUT /api/clients/{id}", a.requireAuth(ch.Update))
	a.mux.Handle("DELETE /api/clients/{id}", a.requireAuth(ch.Delete))

	// Invoices
	a.mux.Handle("GET /api/invoices", a.requireAuth(ih.List))
	a.mux.Handle("POST /api/invoices", a.requireAuth(ih.Create))
	a.mux.Handle("GET /api/invoices/stats", a.requireAuth(ih.Stats))
	a.mux.Handle("GET /api/invoices/{id}", a.requireAuth(ih.Get))
	a.mux.Handle("PUT /api/invoices/{id}", a.requireAuth(ih.Update))
	a.mux.Handle("DELETE /api/invoices/{id}", a.requireAuth(ih.Delete))
	a.mux.Handle("PATCH /api/invoices/{id}/status", a.requireAuth(ih.UpdateStatus))
	a.mux.Handle("POST /api/invoices/{id}/payments", a.requireAuth(ih.RecordPayment))

	// Drafting from text and images
	a.mux.Handle("POST /api/nlp/parse", a.requireAuth(xh.ParseText))
	a.mux.Handle("POST /api/ocr/process", a.requireAuth(xh.ProcessImage))

	// Documents
	a.mux.Handle("GET /api/pdf/invoices/{id}", a.requireAuth(ph.Invoice))
}

// requireAuth wraps a handler to require authentication.
func (a *App) requireAuth(h http.HandlerFunc) http.Handler {
	return a.routerCfg.Tokens.RequireAuth(h)
}

func (a *App) ping() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
