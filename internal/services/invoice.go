package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/diewo77/smart-invoices/internal/logger"
	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/money"
	"github.com/diewo77/smart-invoices/validation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultMaxAttempts bounds invoice creation retries after a number collision.
const DefaultMaxAttempts = 3

// InvoiceService owns the invoice lifecycle: numbering, totals, status changes.
type InvoiceService struct {
	db          *gorm.DB
	clients     *ClientService
	now         func() time.Time
	log         zerolog.Logger
	maxAttempts int
}

// Option configures an InvoiceService.
type Option func(*InvoiceService)

// WithClock overrides the time source used for numbering and default dates.
func WithClock(now func() time.Time) Option { return func(s *InvoiceService) { s.now = now } }

// WithLogger replaces the component logger.
func WithLogger(l zerolog.Logger) Option { return func(s *InvoiceService) { s.log = l } }

// WithMaxAttempts sets how many times Create tries before reporting a conflict.
func WithMaxAttempts(n int) Option {
	return func(s *InvoiceService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// NewInvoiceService returns a service over db. It reads the wall clock unless WithClock is given.
func NewInvoiceService(db *gorm.DB, opts ...Option) *InvoiceService {
	s := &InvoiceService{
		db:          db,
		clients:     NewClientService(db),
		now:         time.Now,
		log:         logger.WithComponent("invoices"),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InvoiceService) today() time.Time { return dateOf(s.now().UTC()) }

// Create validates d, computes totals, assigns the next invoice number and stores the
// invoice with its line items in one transaction. A number collision restarts the
// transaction with a fresh number, up to maxAttempts.
func (s *InvoiceService) Create(ctx context.Context, ownerID uint, d Draft) (*models.Invoice, error) {
	now := s.now().UTC()
	in, err := d.check(true)
	if err != nil {
		return nil, err
	}
	if err := s.checkClient(ctx, ownerID, in.clientID); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		inv := in.invoice(ownerID)
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := nextInvoiceNumber(tx, now, attempt > 1)
			if err != nil {
				return err
			}
			inv.InvoiceNumber = number
			return tx.Create(inv).Error
		})
		if err == nil {
			s.log.Info().
				Uint("user_id", ownerID).
				Uint("invoice_id", inv.ID).
				Str("invoice_number", inv.InvoiceNumber).
				Str("total", money.Format(inv.Total)).
				Str("source", string(inv.Source)).
				Msg("invoice created")
			return s.Get(ctx, ownerID, inv.ID)
		}
		if !isUniqueViolation(err) {
			return nil, fmt.Errorf("create invoice: %w", err)
		}
		lastErr = err
		s.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.maxAttempts).Msg("invoice number collision, retrying")
	}
	return nil, &ConflictError{Resource: "invoice_number", Err: lastErr}
}

// Get returns the owner's invoice with client, line items and payments.
func (s *InvoiceService) Get(ctx context.Context, ownerID, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := s.db.WithContext(ctx).
		Preload("Client").
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("sort_order ASC").Order("id ASC") }).
		Preload("Payments", func(db *gorm.DB) *gorm.DB { return db.Order("payment_date DESC").Order("id DESC") }).
		Where("id = ? AND user_id = ?", id, ownerID).
		Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get invoice: %w", err)
	}
	return &inv, nil
}

// Update replaces the invoice's fields and its whole line-item set in one transaction.
// The invoice number never changes. An empty status or source keeps the stored value.
func (s *InvoiceService) Update(ctx context.Context, ownerID, id uint, d Draft) (*models.Invoice, error) {
	in, err := d.check(false)
	if err != nil {
		return nil, err
	}
	if err := s.checkClient(ctx, ownerID, in.clientID); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockInvoice(tx, ownerID, id)
		if err != nil {
			return err
		}
		status, source := current.Status, current.Source
		if in.status != "" {
			if !current.Status.CanTransitionTo(in.status) {
				return invalidField("status", "invalid_transition")
			}
			status = in.status
		}
		if in.source != "" {
			source = in.source
		}

		if err := tx.Where("invoice_id = ?", id).Delete(&models.LineItem{}).Error; err != nil {
			return fmt.Errorf("delete line items: %w", err)
		}
		lines := in.lineItems(id)
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("insert line items: %w", err)
		}
		return tx.Model(current).Updates(map[string]any{
			"client_id":        in.clientID,
			"invoice_date":     in.invoiceDate,
			"due_date":         in.dueDate,
			"currency":         in.currency,
			"subtotal":         in.totals.Subtotal,
			"total_tax":        in.totals.TotalTax,
			"total":            in.totals.Total,
			"status":           status,
			"source":           source,
			"confidence_score": in.confidence,
			"payment_terms":    in.paymentTerms,
			"notes":            in.notes,
		}).Error
	})
	if err != nil {
		return nil, wrapTx("update invoice", err)
	}
	return s.Get(ctx, ownerID, id)
}

// UpdateStatus changes only the status. Values outside the enum and disallowed
// transitions fail validation without writing anything.
func (s *InvoiceService) UpdateStatus(ctx context.Context, ownerID, id uint, status models.InvoiceStatus) (*models.Invoice, error) {
	if !status.Valid() {
		return nil, invalidField("status", "invalid")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockInvoice(tx, ownerID, id)
		if err != nil {
			return err
		}
		if current.Status == status {
			return nil
		}
		if !current.Status.CanTransitionTo(status) {
			return invalidField("status", "invalid_transition")
		}
		return tx.Model(current).Update("status", status).Error
	})
	if err != nil {
		return nil, wrapTx("update invoice status", err)
	}
	return s.Get(ctx, ownerID, id)
}

// Delete removes the invoice with its line items and payments.
func (s *InvoiceService) Delete(ctx context.Context, ownerID, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := lockInvoice(tx, ownerID, id)
		if err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&models.Payment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("invoice_id = ?", id).Delete(&models.LineItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(current).Error
	})
	if err != nil {
		return wrapTx("delete invoice", err)
	}
	s.log.Info().Uint("user_id", ownerID).Uint("invoice_id", id).Msg("invoice deleted")
	return nil
}

// ListParams filters, sorts and pages an invoice listing. Zero values mean defaults.
type ListParams struct {
	Search    string
	Status    models.InvoiceStatus
	ClientID  *uint
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// InvoicePage is one page of invoices.
type InvoicePage struct {
	Invoices   []models.Invoice `json:"invoices"`
	Pagination Pagination       `json:"pagination"`
}

// invoiceSortColumns is the allow-list of sortable fields, by API name.
var invoiceSortColumns = map[string]string{
	"invoiceDate":    "invoices.invoice_date",
	"invoice_date":   "invoices.invoice_date",
	"dueDate":        "invoices.due_date",
	"due_date":       "invoices.due_date",
	"total":          "invoices.total",
	"invoiceNumber":  "invoices.invoice_number",
	"invoice_number": "invoices.invoice_number",
	"createdAt":      "invoices.created_at",
	"created_at":     "invoices.created_at",
}

// List returns the owner's invoices. Search matches invoice number or client name
// as a case-insensitive substring.
func (s *InvoiceService) List(ctx context.Context, ownerID uint, p ListParams) (*InvoicePage, error) {
	page, limit, err := pageBounds(p.Page, p.Limit)
	if err != nil {
		return nil, err
	}
	v := make(validation.Violations)
	sortBy := p.SortBy
	if sortBy == "" {
		sortBy = "invoiceDate"
	}
	column, ok := invoiceSortColumns[sortBy]
	if !ok {
		v.Add("sort_by", "invalid")
	}
	direction := strings.ToLower(p.SortOrder)
	if direction == "" {
		direction = "desc"
	}
	validation.OneOf("sort_order", direction, []string{"asc", "desc"}, v)
	if p.Status != "" && !p.Status.Valid() {
		v.Add("status", "invalid")
	}
	if err := invalid(v); err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).Model(&models.Invoice{}).Where("invoices.user_id = ?", ownerID)
	if term := strings.TrimSpace(p.Search); term != "" {
		like := likePattern(term)
		q = q.Joins("LEFT JOIN clients ON clients.id = invoices.client_id").
			Where("LOWER(invoices.invoice_number) LIKE ? ESCAPE '\\' OR LOWER(clients.name) LIKE ? ESCAPE '\\'", like, like)
	}
	if p.Status != "" {
		q = q.Where("invoices.status = ?", p.Status)
	}
	if p.ClientID != nil {
		q = q.Where("invoices.client_id = ?", *p.ClientID)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count invoices: %w", err)
	}
	invoices := []models.Invoice{}
	err = q.Select("invoices.*").
		Preload("Client").
		Order(column + " " + direction).
		Order("invoices.id " + direction).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&invoices).Error
	if err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}
	return &InvoicePage{Invoices: invoices, Pagination: newPagination(total, page, limit)}, nil
}

// PaymentInput records money received.
type PaymentInput struct {
	Amount          decimal.NullDecimal `json:"amount"`
	PaymentDate     string              `json:"payment_date"`
	PaymentMethod   string              `json:"payment_method"`
	ReferenceNumber string              `json:"reference_number"`
	Notes           string              `json:"notes"`
}

// RecordPayment attaches a payment to the owner's invoice. Totals are not affected.
func (s *InvoiceService) RecordPayment(ctx context.Context, ownerID, invoiceID uint, in PaymentInput) (*models.Payment, error) {
	v := make(validation.Violations)
	if !in.Amount.Valid {
		v.Add("amount", "required")
	} else {
		validation.PositiveDecimal("amount", in.Amount.Decimal, v)
		validation.MaxPlaces("amount", in.Amount.Decimal, money.Scale, v)
	}
	paid := s.today()
	if strings.TrimSpace(in.PaymentDate) != "" {
		t, err := ParseDate(in.PaymentDate)
		if err != nil {
			v.Add("payment_date", "invalid_date")
		}
		paid = t
	}
	validation.MaxLength("payment_method", in.PaymentMethod, 50, v)
	validation.MaxLength("reference_number", in.ReferenceNumber, 100, v)
	if err := invalid(v); err != nil {
		return nil, err
	}

	p := models.Payment{
		InvoiceID:       invoiceID,
		Amount:          in.Amount.Decimal,
		PaymentDate:     paid,
		PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
		ReferenceNumber: strings.TrimSpace(in.ReferenceNumber),
		Notes:           strings.TrimSpace(in.Notes),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockInvoice(tx, ownerID, invoiceID); err != nil {
			return err
		}
		return tx.Create(&p).Error
	})
	if err != nil {
		return nil, wrapTx("record payment", err)
	}
	return &p, nil
}

// MarkOverdue moves every sent invoice whose due date has passed to overdue, through
// UpdateStatus. It is meant for a scheduler outside the request path. Invoices that
// changed status in the meantime are skipped.
func (s *InvoiceService) MarkOverdue(ctx context.Context) (int, error) {
	var due []models.Invoice
	err := s.db.WithContext(ctx).
		Select("id", "user_id").
		Where("status = ? AND due_date IS NOT NULL AND due_date < ?", models.InvoiceStatusSent, s.today()).
		Order("id ASC").
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("find overdue invoices: %w", err)
	}

	marked := 0
	for _, inv := range due {
		_, err := s.UpdateStatus(ctx, inv.UserID, inv.ID, models.InvoiceStatusOverdue)
		var verr *ValidationError
		switch {
		case err == nil:
			marked++
		case IsNotFound(err), errors.As(err, &verr):
			s.log.Debug().Err(err).Uint("invoice_id", inv.ID).Msg("skipping invoice")
		default:
			return marked, err
		}
	}
	s.log.Info().Int("marked", marked).Int("candidates", len(due)).Msg("overdue sweep finished")
	return marked, nil
}

func (s *InvoiceService) checkClient(ctx context.Context, ownerID uint, clientID *uint) error {
	if clientID == nil {
		return nil
	}
	owned, err := s.clients.Owns(ctx, ownerID, *clientID)
	if err != nil {
		return err
	}
	if !owned {
		return ErrNotFound
	}
	return nil
}

// lockInvoice loads the owner's invoice and holds a row lock until tx ends.
func lockInvoice(tx *gorm.DB, ownerID, id uint) (*models.Invoice, error) {
	var inv models.Invoice
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND user_id = ?", id, ownerID).
		Take(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load invoice: %w", err)
	}
	return &inv, nil
}

// wrapTx keeps domain errors recognizable and adds context to store errors.
func wrapTx(op string, err error) error {
	var verr *ValidationError
	if IsNotFound(err) || errors.As(err, &verr) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
