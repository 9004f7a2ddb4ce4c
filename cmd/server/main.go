package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diewo77/smart-invoices/internal/config"
	"github.com/diewo77/smart-invoices/internal/db"
	"github.com/diewo77/smart-invoices/internal/logger"
	"github.com/diewo77/smart-invoices/internal/services"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Load environment variables from .env file
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commandEnv is the state shared by every command once configuration is loaded.
type commandEnv struct {
	cfg       *config.Config
	log       zerolog.Logger
	logCloser io.Closer
}

func newRootCmd() *cobra.Command {
	rt := &commandEnv{}
	serve := func(cmd *cobra.Command, _ []string) error { return rt.serve(cmd.Context()) }

	root := &cobra.Command{
		Use:          "smart-invoices",
		Short:        "Invoicing API with drafting from free text and scanned invoices",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return rt.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.logCloser != nil {
				_ = rt.logCloser.Close()
			}
		},
		RunE: serve,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API (default)",
			Args:  cobra.NoArgs,
			RunE:  serve,
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations and exit",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				conn, err := rt.openDB()
				if err != nil {
					return err
				}
				defer closeDB(conn)
				return rt.migrate(conn)
			},
		},
		&cobra.Command{
			Use:   "mark-overdue",
			Short: "Move sent invoices past their due date to overdue and exit",
			Long: `Runs the overdue sweep once. Schedule it externally (cron, Kubernetes CronJob)
to keep invoice statuses current.`,
			Args: cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				conn, err := rt.openDB()
				if err != nil {
					return err
				}
				defer closeDB(conn)
				n, err := services.NewInvoiceService(conn).MarkOverdue(cmd.Context())
				if err != nil {
					return err
				}
				rt.log.Info().Int("updated", n).Msg("overdue sweep finished")
				return nil
			},
		},
	)
	return root
}

func (rt *commandEnv) init() error {
	rt.cfg = config.Load()
	closer, err := logger.Setup(logger.Config{
		Level:  rt.cfg.Log.Level,
		Format: rt.cfg.Log.Format,
		Output: rt.cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	rt.logCloser = closer
	rt.log = logger.WithComponent("main")
	if err := rt.cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (rt *commandEnv) openDB() (*gorm.DB, error) {
	return db.Open(rt.cfg.Database, logger.WithComponent("db"))
}

func (rt *commandEnv) migrate(conn *gorm.DB) error {
	if err := db.Migrate(conn, rt.cfg.Database.Driver, rt.cfg.Database.URL()); err != nil {
		return err
	}
	rt.log.Info().Str("driver", rt.cfg.Database.Driver).Msg("migrations applied")
	return nil
}

func (rt *commandEnv) serve(ctx context.Context) error {
	conn, err := rt.openDB()
	if err != nil {
		return err
	}
	defer closeDB(conn)

	// SQLite has no separate migration step; its schema always follows the models.
	if rt.cfg.App.Migrations || rt.cfg.Database.Driver == "sqlite" {
		if err := rt.migrate(conn); err != nil {
			return err
		}
	}

	routerCfg := NewRouterConfig(ctx, rt.cfg, conn)
	defer routerCfg.Close()

	srv := &http.Server{
		Addr:         ":" + rt.cfg.Server.Port,
		Handler:      NewApp(conn, routerCfg),
		ReadTimeout:  rt.cfg.Server.ReadTimeout,
		WriteTimeout: rt.cfg.Server.WriteTimeout,
		IdleTimeout:  rt.cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.log.Info().Str("port", rt.cfg.Server.Port).Bool("dev", rt.cfg.App.Dev).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	rt.log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	rt.log.Info().Msg("server stopped gracefully")
	return nil
}

func closeDB(conn *gorm.DB) {
	if sqlDB, err := conn.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
