package models

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "draft"
	InvoiceStatusSent      InvoiceStatus = "sent"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusOverdue   InvoiceStatus = "overdue"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
)

// InvoiceStatuses lists every accepted status.
var InvoiceStatuses = []InvoiceStatus{
	InvoiceStatusDraft,
	InvoiceStatusSent,
	InvoiceStatusPaid,
	InvoiceStatusOverdue,
	InvoiceStatusCancelled,
}

var statusTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:   {InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusSent:    {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue: {InvoiceStatusPaid, InvoiceStatusCancelled},
}

// Valid reports whether s is one of the known statuses.
func (s InvoiceStatus) Valid() bool {
	for _, known := range InvoiceStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Staying in the same status is always allowed; paid and cancelled are terminal.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Source records how an invoice was entered.
type Source string

const (
	SourceManual Source = "manual"
	SourceOCR    Source = "ocr"
	SourceNLP    Source = "nlp"
)

// Valid reports whether s is a known provenance tag.
func (s Source) Valid() bool {
	return s == SourceManual || s == SourceOCR || s == SourceNLP
}
