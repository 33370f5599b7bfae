package domain

import (
	"encoding/json"
	"fmt"
)

// EncodeEvent returns the persisted discriminator and JSON payload for e.
func EncodeEvent(e Event) (string, []byte, error) {
	if e == nil {
		return "", nil, &ErrValidation{Field: "event", Message: "is required"}
	}
	switch e.(type) {
	case Created, Deposited, Withdrawn, PaymentDeclined:
	default:
		return "", nil, &ErrUnknownEvent{Type: fmt.Sprintf("%T", e)}
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s: %w", e.EventType(), err)
	}
	return e.EventType(), payload, nil
}

// DecodeEvent rebuilds an Event from its discriminator and JSON payload.
func DecodeEvent(eventType string, payload []byte) (Event, error) {
	switch eventType {
	case EventTypeCreated:
		var e Created
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return e, nil
	case EventTypeDeposited:
		var e Deposited
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return e, nil
	case EventTypeWithdrawn:
		var e Withdrawn
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return e, nil
	case EventTypePaymentDeclined:
		var e PaymentDeclined
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return e, nil
	default:
		return nil, &ErrUnknownEvent{Type: eventType}
	}
}
