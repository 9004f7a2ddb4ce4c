package extract

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/diewo77/smart-invoices/internal/logger"
	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/money"
	"github.com/diewo77/smart-invoices/internal/services"
	"github.com/diewo77/smart-invoices/validation"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	visionService = "vision"

	// DefaultMaxImageBytes is the upload limit when none is configured.
	DefaultMaxImageBytes = 10 << 20
)

// Recognition is the text found in an image with the recognizer's confidence in [0, 1].
type Recognition struct {
	Text       string
	Confidence float64
}

// TextRecognizer reads the text printed in an image.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte, mimeType string) (*Recognition, error)
}

// Structurer turns recognized document text into a draft.
type Structurer interface {
	Structure(ctx context.Context, ownerID uint, text string) (*services.Draft, error)
}

// ImageResult is the outcome of normalizing an invoice image.
type ImageResult struct {
	Draft          *services.Draft  `json:"extracted_data"`
	Text           string           `json:"text"`
	Confidence     float64          `json:"confidence"`
	DocumentNumber string           `json:"document_number,omitempty"`
	DocumentTotal  *decimal.Decimal `json:"document_total,omitempty"`
}

// ImageNormalizer recognizes the text of an invoice image and reads a draft from it.
type ImageNormalizer struct {
	recognizer TextRecognizer
	structurer Structurer
	clients    ClientResolver
	maxBytes   int64
	now        func() time.Time
	log        zerolog.Logger
}

// NewImageNormalizer builds an image normalizer. With a nil structurer the recognized
// text is read with built-in patterns.
func NewImageNormalizer(recognizer TextRecognizer, structurer Structurer, clients ClientResolver, maxBytes int64) *ImageNormalizer {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImageBytes
	}
	return &ImageNormalizer{
		recognizer: recognizer,
		structurer: structurer,
		clients:    clients,
		maxBytes:   maxBytes,
		now:        time.Now,
		log:        logger.WithComponent("ocr"),
	}
}

var imageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// DetectImageType sniffs the content type of data, adding TIFF which the standard
// sniffer does not know.
func DetectImageType(data []byte) string {
	if bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")) {
		return "image/tiff"
	}
	return http.DetectContentType(data)
}

// Process validates the upload, recognizes its text and returns a draft tagged as ocr.
func (n *ImageNormalizer) Process(ctx context.Context, ownerID uint, image []byte) (*ImageResult, error) {
	const op = "recognize"

	mimeType := DetectImageType(image)
	v := make(validation.Violations)
	switch {
	case len(image) == 0:
		v.Add("invoice", "required")
	case int64(len(image)) > n.maxBytes:
		v.Add("invoice", "too_large")
	case !imageTypes[mimeType]:
		v.Add("invoice", "unsupported_type")
	}
	if !v.Empty() {
		return nil, &services.ValidationError{Violations: v}
	}

	start := time.Now()
	rec, err := n.recognizer.Recognize(ctx, image, mimeType)
	if err != nil {
		return nil, services.NewDependencyError(visionService, op, err)
	}
	n.log.Info().
		Int("bytes", len(image)).
		Str("mime_type", mimeType).
		Int("text_length", len(rec.Text)).
		Float64("confidence", rec.Confidence).
		Dur("duration", time.Since(start)).
		Msg("image recognized")

	facts := readDocument(rec.Text)
	var d *services.Draft
	if n.structurer != nil {
		d, err = n.structurer.Structure(ctx, ownerID, rec.Text)
		if err != nil {
			return nil, err
		}
	} else {
		d, err = n.draftFromFacts(ctx, ownerID, facts)
		if err != nil {
			return nil, err
		}
	}
	d.Source = models.SourceOCR
	conf := rec.Confidence
	d.ConfidenceScore = &conf

	return &ImageResult{
		Draft:          d,
		Text:           rec.Text,
		Confidence:     rec.Confidence,
		DocumentNumber: facts.number,
		DocumentTotal:  facts.total,
	}, nil
}

func (n *ImageNormalizer) draftFromFacts(ctx context.Context, ownerID uint, f documentFacts) (*services.Draft, error) {
	d := &services.Draft{
		ClientName:  f.billTo,
		InvoiceDate: f.invoiceDate,
		DueDate:     f.dueDate,
		Currency:    services.DefaultCurrency,
		LineItems:   f.lines,
	}
	if d.InvoiceDate == "" {
		d.InvoiceDate = n.now().UTC().Format(services.DateLayout)
	}
	if f.number != "" {
		d.Notes = "Document number: " + f.number
	}
	// with no readable rows the printed total becomes a single line
	if len(d.LineItems) == 0 && f.total != nil {
		order := 0
		d.LineItems = []services.LineInput{{
			Description: "Invoice total",
			Quantity:    decimal.NewNullDecimal(decimal.NewFromInt(1)),
			UnitPrice:   decimal.NewNullDecimal(*f.total),
			TaxRate:     decimal.NewNullDecimal(decimal.Zero),
			SortOrder:   &order,
		}}
	}
	id, err := resolveClient(ctx, n.clients, ownerID, d.ClientName)
	if err != nil {
		return nil, err
	}
	d.ClientID = id
	return d, nil
}

// documentFacts are the fields the patterns found in recognized text.
type documentFacts struct {
	number      string
	invoiceDate string
	dueDate     string
	billTo      string
	total       *decimal.Decimal
	lines       []services.LineInput
}

var (
	numberRe  = regexp.MustCompile(`(?i)invoice\s*(?:number|no\b\.?|#)\s*[:#]?\s*([A-Z0-9][A-Z0-9/-]*)`)
	dateRe    = regexp.MustCompile(`(?i)invoice\s+date\s*:?\s*([^\n]+)`)
	dueRe     = regexp.MustCompile(`(?i)due\s+date\s*:?\s*([^\n]+)`)
	totalRe   = regexp.MustCompile(`(?im)^\s*(?:grand\s+)?total(?:\s+due)?\s*:?\s*[$€£]?\s*([\d,]+\.\d{2})\b`)
	billToRe  = regexp.MustCompile(`(?i)bill(?:ed)?\s+to\s*:?[ \t]*\n?[ \t]*([^\n]+)`)
	lineRowRe = regexp.MustCompile(`(?m)^[ \t]*([A-Za-z][^\n]*?)[ \t]+(\d+(?:\.\d+)?)[ \t]+[$€£]?([\d,]+\.\d{2})[ \t]+[$€£]?([\d,]+\.\d{2})[ \t]*$`)
)

var dateLayouts = []string{
	services.DateLayout,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"01/02/2006",
	"2006/01/02",
}

func readDocument(text string) documentFacts {
	var f documentFacts
	if m := numberRe.FindStringSubmatch(text); m != nil {
		f.number = m[1]
	}
	if m := dateRe.FindStringSubmatch(text); m != nil {
		f.invoiceDate = parseLooseDate(m[1])
	}
	if m := dueRe.FindStringSubmatch(text); m != nil {
		f.dueDate = parseLooseDate(m[1])
	}
	if m := billToRe.FindStringSubmatch(text); m != nil {
		f.billTo = strings.TrimSpace(m[1])
	}
	if m := totalRe.FindStringSubmatch(text); m != nil {
		if d, err := money.Parse(m[1]); err == nil {
			f.total = &d
		}
	}
	for _, m := range lineRowRe.FindAllStringSubmatch(text, -1) {
		desc := strings.TrimSpace(m[1])
		if isSummaryRow(desc) {
			continue
		}
		qty, err1 := decimal.NewFromString(m[2])
		price, err2 := money.Parse(m[3])
		if err1 != nil || err2 != nil {
			continue
		}
		order := len(f.lines)
		f.lines = append(f.lines, services.LineInput{
			Description: desc,
			Quantity:    decimal.NewNullDecimal(qty),
			UnitPrice:   decimal.NewNullDecimal(price),
			TaxRate:     decimal.NewNullDecimal(decimal.Zero),
			SortOrder:   &order,
		})
	}
	return f
}

func isSummaryRow(desc string) bool {
	lower := strings.ToLower(desc)
	for _, word := range []string{"total", "subtotal", "tax", "balance", "amount due"} {
		if strings.HasPrefix(lower, word) {
			return true
		}
	}
	return false
}

// parseLooseDate returns the date in s as "2006-01-02", or "" when none of the
// known layouts match.
func parseLooseDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		// take just as many leading fields as the layout has
		fields := strings.Fields(s)
		n := len(strings.Fields(layout))
		if len(fields) < n {
			continue
		}
		if t, err := time.Parse(layout, strings.Join(fields[:n], " ")); err == nil {
			return t.Format(services.DateLayout)
		}
	}
	return ""
}
