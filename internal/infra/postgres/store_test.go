package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/infra/postgres"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Requires TEST_DATABASE_URL pointing at a disposable database.
func TestStore_AppendAndLoad(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := postgres.Connect(ctx, postgres.Config{DatabaseURL: dsn, MaxConns: 2}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()

	accountID := "acc-" + uuid.NewString()
	at := time.Now().UTC().Truncate(time.Millisecond)
	events := []domain.Event{
		domain.Created{ID: accountID, CreatedAt: at},
		domain.Deposited{ID: accountID, Amount: 10, NewBalance: 10, TransactionAt: at},
		domain.Withdrawn{ID: accountID, Amount: 3, NewBalance: 7, TransactionAt: at},
	}

	if err := store.Append(ctx, accountID, events); err != nil {
		t.Fatalf("append: %v", err)
	}

	got, err := store.Load(ctx, accountID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if w, ok := got[2].(domain.Withdrawn); !ok || w.NewBalance != 7 {
		t.Errorf("expected Withdrawn with new balance 7, got %#v", got[2])
	}
}

func TestConnect_RequiresURL(t *testing.T) {
	_, err := postgres.Connect(context.Background(), postgres.Config{}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}
