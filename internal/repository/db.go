package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// withParam appends key=value to a URL or keyword/value DSN unless the DSN
// already sets key.
func withParam(dsn, key, value string) string {
	if strings.Contains(dsn, key) {
		return dsn
	}
	separator := " "
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		separator = "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
	}
	return dsn + separator + key + "=" + value
}

// NewPool opens and pings a connection pool for dsn.
func NewPool(ctx context.Context, dsn string, development bool, logger zerolog.Logger) (*pgxpool.Pool, error) {
	// In development SSL is disabled for local databases. Elsewhere the
	// connection usually goes through a transaction pooler like pgbouncer,
	// which cannot keep server-side prepared statements.
	if development {
		dsn = withParam(dsn, "sslmode", "disable")
	} else {
		dsn = withParam(dsn, "default_query_exec_mode", "simple_protocol")
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database connection string: %w", err)
	}
	poolCfg.MaxConns = 25
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	logger.Info().Str("host", poolCfg.ConnConfig.Host).Msg("Database connection successful")
	return pool, nil
}

// Open returns the Postgres store, or the in-memory store when no DSN is
// configured in development. The returned func releases the pool.
func Open(ctx context.Context, dsn string, development bool, logger zerolog.Logger) (ProfileRepository, func(), error) {
	if dsn == "" {
		if !development {
			return nil, nil, fmt.Errorf("DB_CONNECTION_STRING is required outside development")
		}
		logger.Warn().Msg("No database configured; using the in-memory profile store")
		return NewMemoryProfileRepo(), func() {}, nil
	}
	pool, err := NewPool(ctx, dsn, development, logger)
	if err != nil {
		return nil, nil, err
	}
	return NewProfileRepo(pool), pool.Close, nil
}
