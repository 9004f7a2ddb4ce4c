package main

import (
	"context"
	"io"

	"github.com/diewo77/smart-invoices/auth"
	"github.com/diewo77/smart-invoices/internal/config"
	"github.com/diewo77/smart-invoices/internal/extract"
	"github.com/diewo77/smart-invoices/internal/handlers"
	"github.com/diewo77/smart-invoices/internal/logger"
	"github.com/diewo77/smart-invoices/internal/services"
	"github.com/sashabaranov/go-openai"
	"gorm.io/gorm"
)

// RouterConfig holds the configured handlers, services and token manager of the API.
type RouterConfig struct {
	Tokens *auth.Manager

	AuthHandler    *handlers.AuthHandler
	ClientHandler  *handlers.ClientHandler
	InvoiceHandler *handlers.InvoiceHandler
	ExtractHandler *handlers.ExtractHandler
	PDFHandler     *handlers.PDFHandler

	InvoiceService *services.InvoiceService

	closers []io.Closer
}

// NewRouterConfig wires services and handlers over db. The text normalizer is only
// built with an OpenAI key, the image normalizer only when Vision is enabled and
// its client can be created.
func NewRouterConfig(ctx context.Context, cfg *config.Config, db *gorm.DB) *RouterConfig {
	log := logger.WithComponent("router")

	users := services.NewUserService(db)
	clients := services.NewClientService(db)
	invoices := services.NewInvoiceService(db)

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL,
		auth.WithVerifier(func(ctx context.Context, uid uint) bool {
			ok, err := users.Exists(ctx, uid)
			if err != nil {
				log.Error().Err(err).Uint("user_id", uid).Msg("verify token user")
			}
			return ok
		}))

	rc := &RouterConfig{
		Tokens:         tokens,
		AuthHandler:    handlers.NewAuthHandler(users, tokens),
		ClientHandler:  handlers.NewClientHandler(clients),
		InvoiceHandler: handlers.NewInvoiceHandler(invoices),
		PDFHandler:     handlers.NewPDFHandler(invoices, users),
		InvoiceService: invoices,
	}

	var text handlers.TextParser
	var structurer extract.Structurer
	if cfg.OpenAI.APIKey != "" {
		n := extract.NewTextNormalizer(openai.NewClient(cfg.OpenAI.APIKey), clients, cfg.OpenAI)
		text, structurer = n, n
		log.Info().Str("model", cfg.OpenAI.Model).Msg("text normalizer enabled")
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, text normalizer disabled")
	}

	var images handlers.ImageProcessor
	if cfg.Vision.Enabled {
		gv, err := extract.NewGoogleVision(ctx, cfg.Vision)
		if err != nil {
			log.Warn().Err(err).Msg("vision client unavailable, image normalizer disabled")
		} else {
			rc.closers = append(rc.closers, gv)
			images = extract.NewImageNormalizer(gv, structurer, clients, cfg.Upload.MaxFileSize)
			log.Info().Bool("structured", structurer != nil).Msg("image normalizer enabled")
		}
	}

	rc.ExtractHandler = handlers.NewExtractHandler(text, images, cfg.Upload.MaxFileSize)
	return rc
}

// Close releases external clients.
func (rc *RouterConfig) Close() error {
	var first error
	for _, c := range rc.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
