package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Config sizes the connection pool of one PostgreSQL database. The same
// settings are used for the catalog and for every tenant store.
type Config struct {
	MaxOpenConns    int           `split_words:"true" default:"10"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"1h"`
	ConnMaxIdleTime time.Duration `split_words:"true" default:"5m"`
	DialTimeout     time.Duration `split_words:"true" default:"10s"`
	ReadTimeout     time.Duration `split_words:"true" default:"30s"`
	WriteTimeout    time.Duration `split_words:"true" default:"30s"`
	SlowQuery       time.Duration `split_words:"true" default:"500ms"`
	ApplicationName string        `split_words:"true" default:"restaurant-ordering"`
}

func (c Config) Validate() error {
	if c.MaxOpenConns <= 0 {
		return fmt.Errorf("max open conns must be positive, got %d", c.MaxOpenConns)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max idle conns %d exceeds max open conns %d", c.MaxIdleConns, c.MaxOpenConns)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("dial timeout must be positive")
	}
	return nil
}

// Open connects to dsn, applies the pool settings and pings once. The
// returned DB owns its pool; callers close it.
func Open(ctx context.Context, cfg Config, dsn string) (*bun.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}

	opts := []pgdriver.Option{
		pgdriver.WithDSN(dsn),
		pgdriver.WithDialTimeout(cfg.DialTimeout),
		pgdriver.WithReadTimeout(cfg.ReadTimeout),
		pgdriver.WithWriteTimeout(cfg.WriteTimeout),
	}
	if cfg.ApplicationName != "" {
		opts = append(opts, pgdriver.WithApplicationName(cfg.ApplicationName))
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(opts...))
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(QueryHook{SlowThreshold: cfg.SlowQuery})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}
