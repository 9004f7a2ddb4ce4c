package handlers

import (
	"net/http"
	"strconv"

	"github.com/diewo77/smart-invoices/httpx"
	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/services"
	"github.com/diewo77/smart-invoices/validation"
)

type InvoiceHandler struct {
	invoices *services.InvoiceService
}

func NewInvoiceHandler(invoices *services.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoices: invoices}
}

func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	params, err := listParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.invoices.List(r.Context(), uid, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func listParams(r *http.Request) (services.ListParams, error) {
	q := r.URL.Query()
	p := services.ListParams{
		Search:    q.Get("search"),
		Status:    models.InvoiceStatus(q.Get("status")),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	var err error
	if p.Page, err = queryInt(r, "page", 1); err != nil {
		return p, err
	}
	if p.Limit, err = queryInt(r, "limit", 1); err != nil {
		return p, err
	}
	if raw := q.Get("client_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			return p, &services.ValidationError{Violations: validation.Violations{"client_id": "invalid"}}
		}
		cid := uint(id)
		p.ClientID = &cid
	}
	return p, nil
}

func (h *InvoiceHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	var d services.Draft
	if err := httpx.DecodeJSON(w, r, &d); err != nil {
		badJSON(w, err)
		return
	}
	inv, err := h.invoices.Create(r.Context(), uid, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.invoices.Get(r.Context(), uid, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

// Update replaces the invoice fields and its whole line-item set.
func (h *InvoiceHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var d services.Draft
	if err := httpx.DecodeJSON(w, r, &d); err != nil {
		badJSON(w, err)
		return
	}
	inv, err := h.invoices.Update(r.Context(), uid, id, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.invoices.Delete(r.Context(), uid, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *InvoiceHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in struct {
		Status models.InvoiceStatus `json:"status"`
	}
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badJSON(w, err)
		return
	}
	inv, err := h.invoices.UpdateStatus(r.Context(), uid, id, in.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in services.PaymentInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badJSON(w, err)
		return
	}
	p, err := h.invoices.RecordPayment(r.Context(), uid, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *InvoiceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	stats, err := h.invoices.Stats(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
