package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Pool is an alias for pgxpool.Pool
type Pool = pgxpool.Pool

const maxJournalConns = 2

// NewPool creates the journal connection pool; the schema is migrated on start
func NewPool(lc fx.Lifecycle, logger *zap.Logger, databaseURL, applicationName string) (*pgxpool.Pool, error) {
	logger.Debug("initializing journal connection pool")

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to parse database URL: %w", err)
	}
	// one command at a time, a single writer is enough
	if config.MaxConns > maxJournalConns {
		config.MaxConns = maxJournalConns
	}
	if applicationName != "" {
		config.ConnConfig.RuntimeParams["application_name"] = applicationName
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Debug("connecting to the journal database", zap.String("url", maskPassword(databaseURL)))
			if err := pool.Ping(ctx); err != nil {
				logger.Error("database ping failed", zap.Error(err), zap.String("url", maskPassword(databaseURL)))
				return fmt.Errorf("[DATABASE CONNECTION FAILED] cannot reach the journal database, check DATABASE_URL or unset it to run without a journal: %w", err)
			}
			if err := Migrate(ctx, pool); err != nil {
				return fmt.Errorf("[DATABASE] failed to migrate journal schema: %w", err)
			}
			logger.Debug("journal database ready")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Debug("journal database closed")
			return nil
		},
	})

	return pool, nil
}

// maskPassword masks the password in a connection URL for logging
func maskPassword(url string) string {
	if len(url) == 0 {
		return "<empty>"
	}
	at := strings.LastIndex(url, "@")
	if at < 0 {
		return url
	}
	scheme := strings.Index(url, "://")
	userinfo := url[:at]
	if scheme >= 0 {
		userinfo = url[scheme+3 : at]
	}
	colon := strings.Index(userinfo, ":")
	if colon < 0 {
		return url
	}
	start := at - len(userinfo) + colon + 1
	return url[:start] + "***" + url[at:]
}
