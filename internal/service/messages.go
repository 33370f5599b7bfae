package service

import (
	"github.com/boddenberg/account-actor-go/internal/domain"
	"github.com/boddenberg/account-actor-go/internal/port"
)

// Inbound operations accepted by an AccountActor. Anything else sent to
// the mailbox is logged as an anomaly and ignored.

// AttemptCommand runs the command handler and buffers the resulting event.
type AttemptCommand struct {
	Command domain.Command
}

// ApplyEvent applies an externally sourced event without buffering it.
type ApplyEvent struct {
	Event domain.Event
}

// Flush hands the buffered events, oldest first, to Saver and clears the
// buffer.
type Flush struct {
	Saver port.EventSaver
}

// LoadFromHistory replaces the state with the replay of Events.
type LoadFromHistory struct {
	Events []domain.Event
}
