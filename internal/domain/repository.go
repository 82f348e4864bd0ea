package domain

import (
	"context"
	"time"
)

// OptionsStore is a secondary port persisting the options blob of a
// configuration entry. Load returns ErrOptionsNotFound for an empty slot.
type OptionsStore interface {
	Load(ctx context.Context, entryID string) (Options, error)
	Save(ctx context.Context, entryID string, opts Options) error
	Delete(ctx context.Context, entryID string) error
}

// Clock is the current-time source.
type Clock interface {
	Now() time.Time
}

// CancelFunc cancels a scheduled callback. Calling it more than once, or after
// the callback ran, is a no-op.
type CancelFunc func()

// Scheduler is the host primitive "invoke fn no earlier than at".
type Scheduler interface {
	Schedule(at time.Time, fn func()) CancelFunc
}

// FiredEvent is the payload announced to the outside world for every
// recorded alarm or device event.
type FiredEvent struct {
	PhoneID    string    `json:"phone_id"`
	AlarmID    string    `json:"alarm_id"`
	Event      EventKind `json:"event"`
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventPublisher is a secondary port forwarding fired events to automations.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev FiredEvent) error
}
