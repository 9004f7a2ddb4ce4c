// Package extract turns free text and invoice images into invoice drafts.
// Nothing here persists; callers review a draft and submit it to the invoice service.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/diewo77/smart-invoices/internal/config"
	"github.com/diewo77/smart-invoices/internal/logger"
	"github.com/diewo77/smart-invoices/internal/models"
	"github.com/diewo77/smart-invoices/internal/money"
	"github.com/diewo77/smart-invoices/internal/services"
	"github.com/diewo77/smart-invoices/validation"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
)

const (
	minTextLength = 5
	maxTextLength = 1000

	// recognized text handed to the model is capped to keep prompts bounded
	maxStructureLength = 8000

	openAIService = "openai"
)

// ErrMalformedResponse is returned when the model's reply is not the expected JSON.
var ErrMalformedResponse = errors.New("malformed model response")

// ChatCompleter is the part of the OpenAI client the normalizer needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ClientResolver maps a client name to the owner's client record.
type ClientResolver interface {
	FindByName(ctx context.Context, ownerID uint, name string) (*models.Client, error)
}

// TextNormalizer turns a free-text billing request into a draft using a chat model.
type TextNormalizer struct {
	chat        ChatCompleter
	clients     ClientResolver
	model       string
	temperature float32
	maxRetries  int
	now         func() time.Time
	log         zerolog.Logger
}

// NewTextNormalizer builds a normalizer around chat. The model settings come from cfg.
func NewTextNormalizer(chat ChatCompleter, clients ClientResolver, cfg config.OpenAIConfig) *TextNormalizer {
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &TextNormalizer{
		chat:        chat,
		clients:     clients,
		model:       model,
		temperature: cfg.Temperature,
		maxRetries:  max(cfg.MaxRetries, 1),
		now:         time.Now,
		log:         logger.WithComponent("nlp"),
	}
}

// Normalize parses a short free-text request such as
// "Invoice Acme for 5 hours at $100/hr, 10% tax" into a draft tagged as nlp.
func (n *TextNormalizer) Normalize(ctx context.Context, ownerID uint, text string) (*services.Draft, error) {
	text = strings.TrimSpace(text)
	v := make(validation.Violations)
	validation.Required("text", text, v)
	if l := utf8.RuneCountInString(text); l > 0 && l < minTextLength {
		v.Add("text", "too_short")
	}
	validation.MaxLength("text", text, maxTextLength, v)
	if !v.Empty() {
		return nil, &services.ValidationError{Violations: v}
	}

	d, err := n.structure(ctx, ownerID, freeTextPrompt(text, n.today()))
	if err != nil {
		return nil, err
	}
	d.Source = models.SourceNLP
	return d, nil
}

// Structure reads recognized document text into a draft. The source tag is left
// to the caller.
func (n *TextNormalizer) Structure(ctx context.Context, ownerID uint, text string) (*services.Draft, error) {
	if utf8.RuneCountInString(text) > maxStructureLength {
		text = string([]rune(text)[:maxStructureLength])
	}
	return n.structure(ctx, ownerID, documentPrompt(text, n.today()))
}

func (n *TextNormalizer) today() string { return n.now().UTC().Format(services.DateLayout) }

func (n *TextNormalizer) structure(ctx context.Context, ownerID uint, prompt string) (*services.Draft, error) {
	const op = "chat completion"

	n.log.Debug().Int("prompt_length", len(prompt)).Str("model", n.model).Msg("sending extraction request")

	var lastErr error
	for attempt := 1; attempt <= n.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, services.NewDependencyError(openAIService, op, err)
		}
		resp, err := n.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       n.model,
			Temperature: n.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens: 1000,
		})
		if err != nil {
			lastErr = err
			n.log.Warn().Err(err).Int("attempt", attempt).Int("max_retries", n.maxRetries).Msg("chat completion failed, retrying")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("%w: no choices", ErrMalformedResponse)
			continue
		}

		parsed, err := parseModelReply(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			n.log.Warn().Err(err).Int("attempt", attempt).Msg("unusable model reply, retrying")
			continue
		}
		d, err := n.draft(ctx, ownerID, parsed)
		if err != nil {
			return nil, err
		}
		n.log.Info().Int("line_items", len(d.LineItems)).Bool("client_matched", d.ClientID != nil).Int("attempt", attempt).Msg("text normalized")
		return d, nil
	}
	return nil, services.NewDependencyError(openAIService, op,
		fmt.Errorf("all %d attempts failed, last error: %w", n.maxRetries, lastErr))
}

// draft applies the defaults every extracted invoice gets and resolves the client.
func (n *TextNormalizer) draft(ctx context.Context, ownerID uint, p *modelInvoice) (*services.Draft, error) {
	d := &services.Draft{
		ClientName:   strings.TrimSpace(p.ClientName),
		InvoiceDate:  strings.TrimSpace(p.InvoiceDate),
		DueDate:      strings.TrimSpace(p.DueDate),
		Currency:     strings.ToUpper(strings.TrimSpace(p.Currency)),
		PaymentTerms: strings.TrimSpace(p.PaymentTerms),
		Notes:        strings.TrimSpace(p.Notes),
		LineItems:    make([]services.LineInput, 0, len(p.LineItems)),
	}
	if d.InvoiceDate == "" {
		d.InvoiceDate = n.today()
	}
	if d.Currency == "" {
		d.Currency = services.DefaultCurrency
	}
	for i, item := range p.LineItems {
		order := i
		li := services.LineInput{
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity.NullDecimal,
			UnitPrice:   item.UnitPrice.NullDecimal,
			TaxRate:     item.TaxRate.NullDecimal,
			SortOrder:   &order,
		}
		if !li.Quantity.Valid || li.Quantity.Decimal.IsZero() {
			li.Quantity = decimal.NewNullDecimal(decimal.NewFromInt(1))
		}
		if !li.TaxRate.Valid {
			li.TaxRate = decimal.NewNullDecimal(decimal.Zero)
		}
		d.LineItems = append(d.LineItems, li)
	}

	id, err := resolveClient(ctx, n.clients, ownerID, d.ClientName)
	if err != nil {
		return nil, err
	}
	d.ClientID = id
	return d, nil
}

func resolveClient(ctx context.Context, clients ClientResolver, ownerID uint, name string) (*uint, error) {
	if clients == nil || name == "" {
		return nil, nil
	}
	c, err := clients.FindByName(ctx, ownerID, name)
	if services.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c.ID, nil
}

// modelInvoice is the JSON shape requested from the model.
type modelInvoice struct {
	ClientName   string          `json:"clientName"`
	InvoiceDate  string          `json:"invoiceDate"`
	DueDate      string          `json:"dueDate"`
	Currency     string          `json:"currency"`
	PaymentTerms string          `json:"paymentTerms"`
	Notes        string          `json:"notes"`
	RawLineItems json.RawMessage `json:"lineItems"`
	LineItems    []modelLine     `json:"-"`
}

type modelLine struct {
	Description string `json:"description"`
	Quantity    amount `json:"quantity"`
	UnitPrice   amount `json:"unitPrice"`
	TaxRate     amount `json:"taxRate"`
}

// amount accepts a JSON number, a numeric string or a written amount like "$1,250.00".
// null, "" and absent all decode as invalid.
type amount struct {
	decimal.NullDecimal
}

func (a *amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		a.Valid = false
		return nil
	}
	if unq, ok := strings.CutPrefix(s, `"`); ok {
		s = strings.TrimSuffix(unq, `"`)
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	if s == "" {
		a.Valid = false
		return nil
	}
	d, err := money.Parse(s)
	if err != nil {
		return fmt.Errorf("amount %s: %w", b, err)
	}
	a.NullDecimal = decimal.NewNullDecimal(d)
	return nil
}

// parseModelReply strips markdown fences and decodes the invoice JSON.
func parseModelReply(content string) (*modelInvoice, error) {
	raw := stripFences(content)
	var p modelInvoice
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	items := bytes.TrimSpace(p.RawLineItems)
	if len(items) == 0 || items[0] != '[' {
		return nil, fmt.Errorf("%w: lineItems is missing or not an array", ErrMalformedResponse)
	}
	if err := json.Unmarshal(items, &p.LineItems); err != nil {
		return nil, fmt.Errorf("%w: lineItems: %v", ErrMalformedResponse, err)
	}
	return &p, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if rest, ok := strings.CutPrefix(s, "```json"); ok {
		s = rest
	} else if rest, ok := strings.CutPrefix(s, "```"); ok {
		s = rest
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

const systemPrompt = "You are an invoice data extraction assistant. Reply with a single JSON object and nothing else."

const invoiceShape = `{
  "clientName": "client or company name",
  "invoiceDate": "YYYY-MM-DD, today if not specified",
  "dueDate": "YYYY-MM-DD if mentioned, otherwise empty",
  "currency": "ISO code such as USD, EUR, GBP (default USD)",
  "paymentTerms": "payment terms if mentioned",
  "notes": "any additional notes",
  "lineItems": [
    {
      "description": "service or product description",
      "quantity": number (default 1),
      "unitPrice": number (from hourly rate, price, etc.),
      "taxRate": number (percentage, default 0)
    }
  ]
}`

func freeTextPrompt(text, today string) string {
	return fmt.Sprintf(`Parse the following billing request into structured invoice data. Today is %s.

Request: %q

Return a JSON object with this structure:
%s

Examples:
- "Invoice John for 5 hours at $100/hr" -> John, 5 hours consulting, 100 each
- "Bill ABC Corp for web design $2500" -> ABC Corp, web design service, 2500
- "Create invoice for TechCo: 10 licenses at 50 dollars, 8%% tax" -> TechCo, 10 licenses, 50, tax 8

Default quantity to 1 when not given, write clear professional descriptions and
return only valid JSON without markdown.`, today, text, invoiceShape)
}

func documentPrompt(text, today string) string {
	return fmt.Sprintf(`The text below was recognized from a scanned invoice. Today is %s.
Extract the invoice into this JSON structure, using the "bill to" party as the client:
%s

Recognized text:
"""
%s
"""

Return only valid JSON without markdown.`, today, invoiceShape, text)
}
