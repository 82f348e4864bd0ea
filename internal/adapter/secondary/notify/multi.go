package notify

import (
	"context"
	"errors"

	"iphone-alarms-sync/internal/domain"
)

// Multi fans an event out to every publisher. All publishers are tried;
// their errors are joined.
type Multi []domain.EventPublisher

func (m Multi) PublishEvent(ctx context.Context, ev domain.FiredEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishEvent(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine returns the cheapest publisher covering ps: noop for none,
// the publisher itself for one, Multi otherwise. Nil entries are skipped.
func Combine(ps ...domain.EventPublisher) domain.EventPublisher {
	var live Multi
	for _, p := range ps {
		if p != nil {
			live = append(live, p)
		}
	}
	switch len(live) {
	case 0:
		return NewNoopPublisher()
	case 1:
		return live[0]
	default:
		return live
	}
}
