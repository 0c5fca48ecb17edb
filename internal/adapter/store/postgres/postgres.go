// Package postgres implements the store contracts on PostgreSQL via sqlx.
// The bulk write path streams through per-transaction staging tables with
// COPY; the read path is plain parameterized queries against the composite
// primary keys.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	"go.uber.org/zap"

	"github.com/driftwise/reach-api/internal/adapter/store"
	"github.com/driftwise/reach-api/internal/config"
	"github.com/driftwise/reach-api/migrations"
)

// Compile-time checks that Store satisfies the persistence contracts.
var (
	_ store.Reader          = (*Store)(nil)
	_ store.Loader          = (*Store)(nil)
	_ store.RunLog          = (*Store)(nil)
	_ store.ReferenceReader = (*Store)(nil)
)

// Options tunes the bulk write path. The zero value selects defaults
// suitable for the query binary, which never bulk-writes.
type Options struct {
	// BatchSize is the number of rows streamed per COPY chunk.
	BatchSize int
	// BatchTimeout bounds the streaming of one chunk.
	BatchTimeout time.Duration
	// BatchRetries is how many times a failed load transaction is retried
	// before the error propagates to the caller.
	BatchRetries int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 5000
	}
	if o.BatchTimeout <= 0 {
		o.BatchTimeout = 30 * time.Second
	}
	if o.BatchRetries < 0 {
		o.BatchRetries = 0
	}
	return o
}

// Store is the PostgreSQL implementation of the persistence contracts.
type Store struct {
	db   *sqlx.DB
	log  *zap.Logger
	opts Options
}

// Connect opens a pooled connection from the database configuration.
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url is not configured")
	}
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}

// New wraps an open connection pool.
func New(db *sqlx.DB, opts Options, log *zap.Logger) *Store {
	return &Store{db: db, log: log, opts: opts.withDefaults()}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies store liveness for the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema files in lexical order. All DDL is
// idempotent, so running at every startup is safe.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := migrations.FS.ReadDir(".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		ddl, err := migrations.FS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(ddl)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		s.log.Info("applied migration", zap.String("file", name))
	}
	return nil
}

// withRetry runs one load transaction attempt, retrying on failure with a
// doubling backoff. Context cancellation ends the retry loop immediately.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := 500 * time.Millisecond
	var lastErr error

	for attempt := 0; attempt <= s.opts.BatchRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			s.log.Warn("retrying load transaction",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, s.opts.BatchRetries+1, lastErr)
}

// flushCopy sends the terminating COPY message and releases the statement.
func flushCopy(ctx context.Context, stmt *sql.Stmt) error {
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return fmt.Errorf("flush copy: %w", err)
	}
	if err := stmt.Close(); err != nil {
		return fmt.Errorf("close copy: %w", err)
	}
	return nil
}
