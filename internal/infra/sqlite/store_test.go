package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAppendAndLoadRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	events := []domain.Event{
		domain.Created{ID: "acc-1", CreatedAt: at},
		domain.Deposited{ID: "acc-1", Amount: 100, NewBalance: 100, TransactionAt: at},
		domain.Withdrawn{ID: "acc-1", Amount: 40, NewBalance: 60, TransactionAt: at},
		domain.PaymentDeclined{ID: "acc-1", Amount: 100, TransactionAt: at},
	}
	if err := store.Append(ctx, "acc-1", events); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Append(ctx, "acc-2", []domain.Event{domain.Created{ID: "acc-2", CreatedAt: at}}); err != nil {
		t.Fatalf("append other account: %v", err)
	}

	got, err := store.Load(ctx, "acc-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != len(events) {
		t.Fatalf("expected %d events, got %d", len(events), len(got))
	}
	for i := range events {
		if got[i] != events[i] {
			t.Errorf("event %d: expected %#v, got %#v", i, events[i], got[i])
		}
	}
}

func TestLoadUnknownAccount(t *testing.T) {
	store := openTestStore(t)

	got, err := store.Load(context.Background(), "missing")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no events, got %d", len(got))
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")

	first, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer second.Close()
}

func TestExtractUpMigration(t *testing.T) {
	content := "-- +migrate Up\nCREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;\n"

	got := extractUpMigration(content)
	if got != "\nCREATE TABLE a (id INT);\n" {
		t.Fatalf("unexpected up section: %q", got)
	}
}
