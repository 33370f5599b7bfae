// Package postgres provides a PostgreSQL-backed account event store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("store/postgres")

const schema = `
CREATE TABLE IF NOT EXISTS account_events (
    seq BIGSERIAL PRIMARY KEY,
    event_id UUID NOT NULL UNIQUE,
    account_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    payload JSONB NOT NULL,
    occurred_at TIMESTAMPTZ NOT NULL,
    stored_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_account_events_account ON account_events (account_id, seq);
`

// Config holds pool settings.
type Config struct {
	DatabaseURL     string
	MaxConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store persists account events in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool, verifies it and ensures the schema exists.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 0
	poolCfg.MaxConnLifetime = time.Hour
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	logger.Info("postgres event store connected", zap.Int32("max_conns", poolCfg.MaxConns))
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks that a connection can be acquired.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append writes events in one transaction, preserving their order.
func (s *Store) Append(ctx context.Context, accountID string, events []domain.Event) error {
	ctx, span := tracer.Start(ctx, "Postgres.Append")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.Int("events", len(events)))

	if accountID == "" {
		return &domain.ErrValidation{Field: "account_id", Message: "is required"}
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, evt := range events {
		eventType, payload, err := domain.EncodeEvent(evt)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO account_events (event_id, account_id, event_type, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), accountID, eventType, payload, evt.OccurredAt(),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert events: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}

	s.logger.Debug("postgres: events appended",
		zap.String("account_id", accountID),
		zap.Int("events", len(events)),
	)
	return nil
}

// Load returns the account's events ordered by sequence.
func (s *Store) Load(ctx context.Context, accountID string) ([]domain.Event, error) {
	ctx, span := tracer.Start(ctx, "Postgres.Load")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	rows, err := s.pool.Query(ctx,
		`SELECT event_type, payload FROM account_events WHERE account_id = $1 ORDER BY seq ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var eventType string
		var payload []byte
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt, err := domain.DecodeEvent(eventType, payload)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
