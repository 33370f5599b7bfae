// Package sqlite provides a SQLite-backed account event store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/infra/sqlite/migrations"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("store/sqlite")

// Store persists account events in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite event store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// one writer keeps appends of a batch contiguous
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Append writes events in one transaction, preserving their order.
func (s *Store) Append(ctx context.Context, accountID string, events []domain.Event) error {
	ctx, span := tracer.Start(ctx, "SQLite.Append")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.Int("events", len(events)))

	if err := ctx.Err(); err != nil {
		return err
	}
	if accountID == "" {
		return &domain.ErrValidation{Field: "account_id", Message: "is required"}
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO account_events (
		   event_id, account_id, event_type, payload, occurred_at, stored_at
		 ) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	storedAt := toMillis(s.now())
	for _, evt := range events {
		eventType, payload, err := domain.EncodeEvent(evt)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			uuid.NewString(),
			accountID,
			eventType,
			string(payload),
			toMillis(evt.OccurredAt()),
			storedAt,
		); err != nil {
			return fmt.Errorf("insert %s: %w", eventType, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append: %w", err)
	}
	return nil
}

// Load returns the account's events ordered by sequence.
func (s *Store) Load(ctx context.Context, accountID string) ([]domain.Event, error) {
	ctx, span := tracer.Start(ctx, "SQLite.Load")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT event_type, payload FROM account_events WHERE account_id = ? ORDER BY seq ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := make([]domain.Event, 0)
	for rows.Next() {
		var eventType, payload string
		if err := rows.Scan(&eventType, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		evt, err := domain.DecodeEvent(eventType, []byte(payload))
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
