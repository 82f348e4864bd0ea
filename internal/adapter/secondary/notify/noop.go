package notify

import (
	"context"

	"iphone-alarms-sync/internal/domain"
)

// NoopPublisher implements domain.EventPublisher with no-op behavior.
// Used when no outbound integration is configured.
type NoopPublisher struct{}

// NewNoopPublisher creates a publisher that drops every event.
func NewNoopPublisher() domain.EventPublisher {
	return &NoopPublisher{}
}

// PublishEvent does nothing and always succeeds.
func (n *NoopPublisher) PublishEvent(context.Context, domain.FiredEvent) error {
	return nil
}
