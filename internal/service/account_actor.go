package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/infra/observability"
	"github.com/boddenberg/account-actor-go/internal/port"

	"go.uber.org/zap"
)

// DefaultIdleTimeout is used when ActorOptions.IdleTimeout is not set.
const DefaultIdleTimeout = 2 * time.Minute

// evictFlushTimeout bounds the OnEvict saver call made during shutdown.
const evictFlushTimeout = 5 * time.Second

// ActorOptions configures an AccountActor.
type ActorOptions struct {
	// IdleTimeout is the inactivity window after which the actor
	// deregisters and stops.
	IdleTimeout time.Duration
	// Clock stamps new events. Defaults to time.Now in UTC.
	Clock func() time.Time
	// OnEvict, when set, receives events still pending at termination.
	OnEvict port.EventSaver
}

// AccountActor owns one AccountState and serializes every change to it
// through a single mailbox. It never replies to senders.
type AccountActor struct {
	inbox    chan any
	done     chan struct{}
	registry port.Registry
	opts     ActorOptions
	metrics  *observability.Metrics
	logger   *zap.Logger

	// owned by the run goroutine
	state      domain.AccountState
	registered string
	attempted  string

	mu sync.RWMutex
	id string
}

// StartAccountActor spawns an anonymous actor. It becomes routable by id
// once a Created event is applied and it registers itself. The actor stops
// after the idle window or when ctx is cancelled.
func StartAccountActor(ctx context.Context, registry port.Registry, opts ActorOptions, metrics *observability.Metrics, logger *zap.Logger) *AccountActor {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	a := &AccountActor{
		inbox:    make(chan any),
		done:     make(chan struct{}),
		registry: registry,
		opts:     opts,
		metrics:  metrics,
		logger:   logger,
	}
	go a.run(ctx)
	return a
}

// Tell hands msg to the actor. It blocks until the actor takes the message,
// the actor stops, or ctx is done.
func (a *AccountActor) Tell(ctx context.Context, msg any) error {
	select {
	case a.inbox <- msg:
		return nil
	case <-a.done:
		return domain.ErrActorStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the actor has terminated.
func (a *AccountActor) Done() <-chan struct{} {
	return a.done
}

// ID returns the account id the actor is registered under, or "" while it
// is anonymous.
func (a *AccountActor) ID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.id
}

func (a *AccountActor) run(ctx context.Context) {
	defer close(a.done)

	timer := time.NewTimer(a.opts.IdleTimeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-a.inbox:
			a.receive(ctx, msg)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(a.opts.IdleTimeout)

		case <-timer.C:
			a.metrics.IncrEviction()
			a.logger.Info("account actor idle, evicting",
				zap.String("account_id", a.registered),
				zap.Duration("idle_timeout", a.opts.IdleTimeout),
			)
			a.terminate(ctx)
			return

		case <-ctx.Done():
			a.logger.Debug("account actor shutting down", zap.String("account_id", a.registered))
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evictFlushTimeout)
			a.terminate(stopCtx)
			cancel()
			return
		}
	}
}

func (a *AccountActor) receive(ctx context.Context, msg any) {
	defer func() {
		if r := recover(); r != nil {
			a.anomaly(observability.AnomalyHandlerPanic, "account actor recovered from panic",
				zap.String("message_type", fmt.Sprintf("%T", msg)),
				zap.Any("panic", r),
			)
		}
	}()

	switch m := msg.(type) {
	case AttemptCommand:
		a.attempt(m.Command)

	case ApplyEvent:
		if m.Event == nil {
			a.anomaly(observability.AnomalyUnknownMessage, "apply event without event")
			return
		}
		a.state = Apply(a.state, m.Event)
		a.metrics.IncrEventApplied(m.Event.EventType())
		a.syncRegistration()

	case Flush:
		if m.Saver == nil {
			a.anomaly(observability.AnomalyUnknownMessage, "flush without saver")
			return
		}
		a.flush(ctx, m.Saver)

	case LoadFromHistory:
		a.state = ApplyMany(m.Events)
		a.logger.Debug("account state loaded from history",
			zap.String("account_id", a.state.ID),
			zap.Int("events", len(m.Events)),
			zap.Int64("balance", a.state.Balance),
		)
		a.syncRegistration()

	default:
		a.anomaly(observability.AnomalyUnknownMessage, "unrecognized message",
			zap.String("message_type", fmt.Sprintf("%T", msg)),
		)
	}
}

func (a *AccountActor) attempt(cmd domain.Command) {
	evt, err := HandleCommand(cmd, a.state, a.opts.Clock())
	if err != nil {
		name := "unknown"
		if cmd != nil {
			name = cmd.CommandName()
		}
		a.metrics.IncrCommand(name, "rejected")
		a.anomaly(observability.AnomalyRejectedCommand, "command rejected",
			zap.String("command", name),
			zap.Error(err),
		)
		return
	}

	if c, ok := evt.(domain.Created); ok && a.state.Active() && c.ID != a.state.ID {
		a.logger.Warn("account identity overwritten",
			zap.String("previous_id", a.state.ID),
			zap.String("account_id", c.ID),
		)
	}

	a.state = ApplyNew(a.state, evt)
	a.metrics.IncrCommand(cmd.CommandName(), "accepted")
	a.metrics.IncrEventApplied(evt.EventType())
	a.logger.Debug("command applied",
		zap.String("account_id", a.state.ID),
		zap.String("command", cmd.CommandName()),
		zap.String("event", evt.EventType()),
		zap.Int64("balance", a.state.Balance),
		zap.Int("pending", a.state.PendingCount()),
	)
	a.syncRegistration()
}

// flush delivers pending events oldest first and always clears the buffer.
// The saver is not retried.
func (a *AccountActor) flush(ctx context.Context, saver port.EventSaver) {
	events := a.state.Pending()
	if err := saver(ctx, a.state.ID, events); err != nil {
		a.anomaly(observability.AnomalySaverFailed, "saver failed, events dropped from buffer",
			zap.String("account_id", a.state.ID),
			zap.Int("events", len(events)),
			zap.Error(err),
		)
	}
	a.state = a.state.WithoutPending()
	a.metrics.ObserveFlush(len(events))
}

// syncRegistration registers the current id once it is set or changes.
// Each id gets at most one Register call, whether or not it succeeds.
func (a *AccountActor) syncRegistration() {
	id := a.state.ID
	if id == "" || id == a.attempted {
		return
	}
	a.attempted = id
	if a.registered != "" {
		if err := a.registry.Deregister(a.registered, a); err != nil {
			a.anomaly(observability.AnomalyDeregisterFailed, "failed to deregister previous id",
				zap.String("account_id", a.registered),
				zap.Error(err),
			)
		}
		a.registered = ""
		a.mu.Lock()
		a.id = ""
		a.mu.Unlock()
	}
	if err := a.registry.Register(id, a); err != nil {
		a.anomaly(observability.AnomalyRegisterFailed, "failed to register account",
			zap.String("account_id", id),
			zap.Error(err),
		)
		return
	}
	a.registered = id

	a.mu.Lock()
	a.id = id
	a.mu.Unlock()
}

// terminate runs the eviction sequence. A deregistration failure does not
// stop termination.
func (a *AccountActor) terminate(ctx context.Context) {
	if a.opts.OnEvict != nil && a.state.PendingCount() > 0 {
		a.flush(ctx, a.opts.OnEvict)
	}
	if a.registered == "" {
		return
	}
	if err := a.registry.Deregister(a.registered, a); err != nil {
		a.anomaly(observability.AnomalyDeregisterFailed, "failed to deregister account",
			zap.String("account_id", a.registered),
			zap.Error(err),
		)
	}
}

func (a *AccountActor) anomaly(kind, msg string, fields ...zap.Field) {
	a.metrics.IncrAnomaly(kind)
	a.logger.Warn(msg, append(fields, observability.Anomaly(kind))...)
}
