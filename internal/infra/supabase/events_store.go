package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

const eventsTable = "account_events"

// supabaseEvent maps the account_events table columns.
type supabaseEvent struct {
	EventID    string          `json:"event_id"`
	AccountID  string          `json:"account_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Append inserts the batch as one PostgREST request (implements port.EventStore).
func (c *Client) Append(ctx context.Context, accountID string, events []domain.Event) error {
	ctx, span := tracer.Start(ctx, "Supabase.Append")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.Int("events", len(events)))

	if accountID == "" {
		return &domain.ErrValidation{Field: "account_id", Message: "is required"}
	}
	if len(events) == 0 {
		return nil
	}

	// ids are fixed before the first attempt so retries stay idempotent
	rows := make([]supabaseEvent, 0, len(events))
	for _, evt := range events {
		eventType, payload, err := domain.EncodeEvent(evt)
		if err != nil {
			return err
		}
		rows = append(rows, supabaseEvent{
			EventID:    uuid.NewString(),
			AccountID:  accountID,
			EventType:  eventType,
			Payload:    payload,
			OccurredAt: evt.OccurredAt(),
		})
	}

	return c.execute(ctx, "supabase/account_events", func() error {
		_, err := c.do(ctx, http.MethodPost, eventsTable+"?on_conflict=event_id", rows,
			"return=minimal,resolution=ignore-duplicates")
		return err
	})
}

// Load fetches the account's events ordered by sequence (implements port.EventStore).
func (c *Client) Load(ctx context.Context, accountID string) ([]domain.Event, error) {
	ctx, span := tracer.Start(ctx, "Supabase.Load")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	var events []domain.Event

	err := c.execute(ctx, "supabase/account_events", func() error {
		path := fmt.Sprintf("%s?account_id=eq.%s&order=seq.asc&select=event_id,account_id,event_type,payload,occurred_at",
			eventsTable, url.QueryEscape(accountID))
		body, err := c.do(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return err
		}

		events = make([]domain.Event, 0)
		if len(body) == 0 {
			return nil
		}

		var rows []supabaseEvent
		if err := json.Unmarshal(body, &rows); err != nil {
			return fmt.Errorf("failed to decode events: %w", err)
		}
		for _, r := range rows {
			evt, err := domain.DecodeEvent(r.EventType, r.Payload)
			if err != nil {
				return err
			}
			events = append(events, evt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Ping checks that the events table is reachable. It bypasses the breaker
// so readiness reflects the current state of the backend.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, eventsTable+"?select=seq&limit=1", nil, "")
	return err
}
