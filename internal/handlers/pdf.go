package handlers

import (
	"net/http"
	"strconv"

	"github.com/diewo77/smart-invoices/internal/pdf"
	"github.com/diewo77/smart-invoices/internal/services"
)

type PDFHandler struct {
	invoices *services.InvoiceService
	users    *services.UserService
}

func NewPDFHandler(invoices *services.InvoiceService, users *services.UserService) *PDFHandler {
	return &PDFHandler{invoices: invoices, users: users}
}

// Invoice streams the rendered invoice as an attachment.
func (h *PDFHandler) Invoice(w http.ResponseWriter, r *http.Request) {
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
	issuer, err := h.users.Get(r.Context(), uid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := pdf.Render(pdf.FromInvoice(inv, issuer))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote("invoice-"+inv.InvoiceNumber+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
