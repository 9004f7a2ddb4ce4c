// Package db opens the gorm connection pool and applies schema migrations.
package db

import (
	"fmt"
	"time"

	"github.com/diewo77/smart-invoices/internal/config"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const retryDelay = 2 * time.Second

// Open connects with the configured driver, retrying while the server comes up.
// Unique and foreign-key violations are translated to gorm.ErrDuplicatedKey and
// gorm.ErrForeignKeyViolated.
func Open(cfg config.DatabaseConfig, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	var dsn string
	switch cfg.Driver {
	case "sqlite":
		dsn = cfg.DSN()
		dialector = sqlite.Open(dsn)
	case "postgres", "":
		dsn = NormalizeDSN(cfg.DSN())
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gormCfg := &gorm.Config{
		Logger:         NewGormLogger(log, cfg.Debug),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	attempts := max(cfg.Retries, 1)
	var conn *gorm.DB
	var err error
	for i := 1; i <= attempts; i++ {
		conn, err = gorm.Open(dialector, gormCfg)
		if err == nil {
			err = ping(conn)
		}
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i).Int("max_attempts", attempts).Msg("database not ready, retrying")
		if i < attempts {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect database after %d attempts: %w", attempts, err)
	}

	if cfg.Driver == "sqlite" {
		if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
		// SQLite has a single writer; one connection serializes transactions instead of failing them.
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	log.Info().Str("driver", cfg.Driver).Str("dsn", MaskDSN(dsn)).Msg("database connected")
	return conn, nil
}

func ping(conn *gorm.DB) error {
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// NewGormLogger routes gorm's SQL logging through zerolog. Only slow queries and
// errors are reported unless debug is set.
func NewGormLogger(log zerolog.Logger, debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	l := log.With().Str("component", "gorm").Logger()
	return gormlogger.New(&l, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
