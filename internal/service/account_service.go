// Package service provides the account core (command handler, event
// applier, account actor) and the AccountService that routes inbound
// operations to live actors.
package service

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/infra/observability"
	"github.com/boddenberg/account-actor-go/internal/infra/resilience"
	"github.com/boddenberg/account-actor-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("service/accounts")

const routeStripes = 32

// ServiceConfig tunes an AccountService.
type ServiceConfig struct {
	IdleTimeout          time.Duration
	FlushOnEvict         bool
	MaxConcurrentFlushes int
	StoreName            string
	Clock                func() time.Time
}

// AccountService routes commands to account actors, spawning and
// rehydrating them from the event store on demand.
type AccountService struct {
	actorCtx context.Context
	registry port.Registry
	store    port.EventStore
	views    port.Cache[*domain.AccountView]
	cfg      ServiceConfig
	bulkhead *resilience.Bulkhead
	metrics  *observability.Metrics
	logger   *zap.Logger

	stripes [routeStripes]sync.Mutex

	mu        sync.Mutex
	anonymous map[string]*AccountActor
	actors    sync.WaitGroup

	// writes is bumped on every successful append; reads that overlap a
	// write are not cached
	viewMu sync.Mutex
	writes uint64
}

// NewAccountService creates the service. Actors it spawns stop when
// actorCtx is cancelled.
func NewAccountService(
	actorCtx context.Context,
	registry port.Registry,
	store port.EventStore,
	views port.Cache[*domain.AccountView],
	cfg ServiceConfig,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *AccountService {
	if cfg.MaxConcurrentFlushes <= 0 {
		cfg.MaxConcurrentFlushes = 8
	}
	if cfg.StoreName == "" {
		cfg.StoreName = "events"
	}
	return &AccountService{
		actorCtx:  actorCtx,
		registry:  registry,
		store:     store,
		views:     views,
		cfg:       cfg,
		bulkhead:  resilience.NewBulkhead(cfg.MaxConcurrentFlushes),
		metrics:   metrics,
		logger:    logger,
		anonymous: make(map[string]*AccountActor),
	}
}

// ============================================================
// Commands
// ============================================================

// Create spawns the actor for a new account and sends it Create.
func (s *AccountService) Create(ctx context.Context, accountID string) error {
	ctx, span := tracer.Start(ctx, "AccountService.Create")
	defer span.End()

	accountID = strings.TrimSpace(accountID)
	span.SetAttributes(attribute.String("account.id", accountID))
	if accountID == "" {
		return &domain.ErrValidation{Field: "account_id", Message: "is required"}
	}
	return s.dispatch(ctx, accountID, AttemptCommand{Command: domain.Create{ID: accountID}}, true)
}

// Deposit sends a Deposit command to the account.
func (s *AccountService) Deposit(ctx context.Context, accountID string, amount int64) error {
	ctx, span := tracer.Start(ctx, "AccountService.Deposit")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.Int64("amount", amount))

	if amount <= 0 {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	return s.dispatch(ctx, accountID, AttemptCommand{Command: domain.Deposit{Amount: amount}}, false)
}

// Withdraw sends a Withdraw command to the account. Insufficient funds are
// recorded by the actor as PaymentDeclined, not reported here.
func (s *AccountService) Withdraw(ctx context.Context, accountID string, amount int64) error {
	ctx, span := tracer.Start(ctx, "AccountService.Withdraw")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID), attribute.Int64("amount", amount))

	if amount <= 0 {
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	return s.dispatch(ctx, accountID, AttemptCommand{Command: domain.Withdraw{Amount: amount}}, false)
}

// Flush asks a live account to persist its pending events. Accounts without
// a live actor have nothing pending.
func (s *AccountService) Flush(ctx context.Context, accountID string) error {
	ref, ok := s.live(accountID)
	if !ok {
		return nil
	}
	if err := ref.Tell(ctx, Flush{Saver: s.persist}); err != nil && !errors.Is(err, domain.ErrActorStopped) {
		return err
	}
	return nil
}

// FlushAll asks every registered actor to persist its pending events.
func (s *AccountService) FlushAll(ctx context.Context) error {
	refs := s.registry.Snapshot()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrentFlushes)
	for id, ref := range refs {
		id, ref := id, ref
		g.Go(func() error {
			err := ref.Tell(ctx, Flush{Saver: s.persist})
			if errors.Is(err, domain.ErrActorStopped) {
				s.logger.Debug("flush skipped, actor already stopped", zap.String("account_id", id))
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// RunFlusher calls FlushAll every interval until ctx is done.
func (s *AccountService) RunFlusher(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.FlushAll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("periodic flush failed", zap.Error(err))
			}
		}
	}
}

// Wait blocks until every spawned actor has stopped or ctx is done.
func (s *AccountService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.actors.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================
// Reads
// ============================================================

// GetAccount returns the persisted view of an account, rebuilt by replaying
// its stored events.
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.AccountView, error) {
	ctx, span := tracer.Start(ctx, "AccountService.GetAccount")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	key := viewKey(accountID)
	if cached, ok := s.views.Get(key); ok {
		s.metrics.IncrCacheHit("account")
		out := *cached
		_, out.Live = s.live(accountID)
		return &out, nil
	}
	s.metrics.IncrCacheMiss("account")

	s.viewMu.Lock()
	gen := s.writes
	s.viewMu.Unlock()

	events, err := s.loadHistory(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}

	state := ApplyMany(events)
	view := &domain.AccountView{
		ID:         state.ID,
		CreatedAt:  state.CreatedAt,
		Balance:    state.Balance,
		EventCount: len(events),
	}
	s.viewMu.Lock()
	if s.writes == gen {
		s.views.Set(key, view)
	}
	s.viewMu.Unlock()

	out := *view
	_, out.Live = s.live(accountID)
	return &out, nil
}

// History returns the stored events of an account, oldest first.
func (s *AccountService) History(ctx context.Context, accountID string) ([]domain.StoredEvent, error) {
	ctx, span := tracer.Start(ctx, "AccountService.History")
	defer span.End()

	events, err := s.loadHistory(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, &domain.ErrNotFound{Resource: "account", ID: accountID}
	}

	out := make([]domain.StoredEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, domain.StoredEvent{
			Type:       evt.EventType(),
			AccountID:  evt.AccountID(),
			OccurredAt: evt.OccurredAt(),
			Data:       evt,
		})
	}
	return out, nil
}

// ============================================================
// Routing
// ============================================================

// dispatch delivers msg to the account's actor. An actor that stops between
// lookup and delivery is replaced once.
func (s *AccountService) dispatch(ctx context.Context, accountID string, msg any, create bool) error {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = s.deliver(ctx, accountID, msg, create)
		if !errors.Is(err, domain.ErrActorStopped) {
			return err
		}
		s.logger.Debug("actor stopped during delivery, rerouting", zap.String("account_id", accountID))
	}
	return err
}

func (s *AccountService) deliver(ctx context.Context, accountID string, msg any, create bool) error {
	if ref, ok := s.live(accountID); ok {
		if create {
			return &domain.ErrConflict{Message: fmt.Sprintf("account already exists: %s", accountID)}
		}
		return ref.Tell(ctx, msg)
	}

	lock := s.stripe(accountID)
	lock.Lock()
	defer lock.Unlock()

	// another caller may have spawned it while we waited
	if ref, ok := s.live(accountID); ok {
		if create {
			return &domain.ErrConflict{Message: fmt.Sprintf("account already exists: %s", accountID)}
		}
		return ref.Tell(ctx, msg)
	}

	history, err := s.loadHistory(ctx, accountID)
	if err != nil {
		return err
	}
	switch {
	case create && len(history) > 0:
		return &domain.ErrConflict{Message: fmt.Sprintf("account already exists: %s", accountID)}
	case !create && len(history) == 0:
		return &domain.ErrNotFound{Resource: "account", ID: accountID}
	}

	// The bootstrap messages ignore caller cancellation: once the actor is
	// routable it must hold the loaded history before anything else reaches it.
	bootCtx := context.WithoutCancel(ctx)
	a := s.spawn(accountID)
	if len(history) > 0 {
		if err := a.Tell(bootCtx, LoadFromHistory{Events: history}); err != nil {
			s.forget(accountID, a)
			return err
		}
	}
	// delivered under the stripe lock so later messages queue behind it
	if err := a.Tell(bootCtx, msg); err != nil {
		s.forget(accountID, a)
		return err
	}
	return nil
}

// forget drops an anonymous actor whose bootstrap could not be delivered.
func (s *AccountService) forget(accountID string, a *AccountActor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.anonymous[accountID] == a {
		delete(s.anonymous, accountID)
	}
}

// live returns the registered actor for accountID, or an anonymous actor
// this service spawned for it that has not registered yet.
func (s *AccountService) live(accountID string) (port.Mailbox, bool) {
	if ref, ok := s.registry.Lookup(accountID); ok {
		return ref, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.anonymous[accountID]
	if !ok {
		return nil, false
	}
	select {
	case <-a.Done():
		delete(s.anonymous, accountID)
		return nil, false
	default:
		return a, true
	}
}

func (s *AccountService) spawn(accountID string) *AccountActor {
	opts := ActorOptions{
		IdleTimeout: s.cfg.IdleTimeout,
		Clock:       s.cfg.Clock,
	}
	if s.cfg.FlushOnEvict {
		opts.OnEvict = s.persist
	}

	a := StartAccountActor(s.actorCtx, s.registry, opts, s.metrics, s.logger.With(zap.String("actor_for", accountID)))

	s.mu.Lock()
	s.anonymous[accountID] = a
	s.mu.Unlock()

	s.actors.Add(1)
	go func() {
		defer s.actors.Done()
		<-a.Done()
		s.mu.Lock()
		if s.anonymous[accountID] == a {
			delete(s.anonymous, accountID)
		}
		s.mu.Unlock()
	}()

	s.logger.Debug("account actor spawned", zap.String("account_id", accountID))
	return a
}

func (s *AccountService) stripe(accountID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(accountID))
	return &s.stripes[h.Sum32()%routeStripes]
}

// ============================================================
// Persistence
// ============================================================

// persist is the EventSaver handed to actors. It appends the batch to the
// event store and invalidates the cached view.
func (s *AccountService) persist(ctx context.Context, accountID string, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	err := s.bulkhead.Do(ctx, func() error {
		start := time.Now()
		err := s.store.Append(ctx, accountID, events)
		s.metrics.RecordStoreDuration(s.cfg.StoreName, "append", time.Since(start))
		return err
	})
	if err != nil {
		s.metrics.IncrStoreError(s.cfg.StoreName)
		return fmt.Errorf("append events for %s: %w", accountID, err)
	}

	s.viewMu.Lock()
	s.writes++
	s.views.Delete(viewKey(accountID))
	s.viewMu.Unlock()

	s.logger.Debug("events persisted",
		zap.String("account_id", accountID),
		zap.Int("events", len(events)),
	)
	return nil
}

func (s *AccountService) loadHistory(ctx context.Context, accountID string) ([]domain.Event, error) {
	start := time.Now()
	events, err := s.store.Load(ctx, accountID)
	s.metrics.RecordStoreDuration(s.cfg.StoreName, "load", time.Since(start))
	if err != nil {
		s.metrics.IncrStoreError(s.cfg.StoreName)
		return nil, fmt.Errorf("load events for %s: %w", accountID, err)
	}
	return events, nil
}

func viewKey(accountID string) string {
	return "account:" + accountID
}
