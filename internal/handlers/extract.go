package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/diewo77/smart-invoices/httpx"
	"github.com/diewo77/smart-invoices/internal/extract"
	"github.com/diewo77/smart-invoices/internal/services"
	"github.com/diewo77/smart-invoices/validation"
)

// multipartOverhead covers form boundaries and headers around the uploaded file.
const multipartOverhead = 1 << 20

// TextParser turns free text into a draft.
type TextParser interface {
	Normalize(ctx context.Context, ownerID uint, text string) (*services.Draft, error)
}

// ImageProcessor turns an invoice image into a draft.
type ImageProcessor interface {
	Process(ctx context.Context, ownerID uint, image []byte) (*extract.ImageResult, error)
}

// ExtractHandler serves the draft normalizers. A nil parser or processor means the
// backing service is not configured.
type ExtractHandler struct {
	text     TextParser
	images   ImageProcessor
	maxBytes int64
}

func NewExtractHandler(text TextParser, images ImageProcessor, maxBytes int64) *ExtractHandler {
	if maxBytes <= 0 {
		maxBytes = extract.DefaultMaxImageBytes
	}
	return &ExtractHandler{text: text, images: images, maxBytes: maxBytes}
}

// ParseText answers {"parsed_data": draft}. Nothing is stored.
func (h *ExtractHandler) ParseText(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	if h.text == nil {
		unavailable(w, "openai")
		return
	}
	var in struct {
		Text string `json:"text"`
	}
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		badJSON(w, err)
		return
	}
	d, err := h.text.Normalize(r.Context(), uid, in.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"parsed_data": d})
}

// ProcessImage reads the multipart field "invoice" and answers the extracted draft
// with the recognized text.
func (h *ExtractHandler) ProcessImage(w http.ResponseWriter, r *http.Request) {
	uid, ok := ownerID(w, r)
	if !ok {
		return
	}
	if h.images == nil {
		unavailable(w, "vision")
		return
	}
	image, err := h.readUpload(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.images.Process(r.Context(), uid, image)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *ExtractHandler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, uploadError("too_large")
		}
		return nil, uploadError("required")
	}
	file, _, err := r.FormFile("invoice")
	if err != nil {
		return nil, uploadError("required")
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > h.maxBytes {
		return nil, uploadError("too_large")
	}
	return data, nil
}

func uploadError(code string) error {
	return &services.ValidationError{Violations: validation.Violations{"invoice": code}}
}

func unavailable(w http.ResponseWriter, service string) {
	httpx.JSONError(w, http.StatusServiceUnavailable, "service_unavailable", map[string]string{"service": service})
}
