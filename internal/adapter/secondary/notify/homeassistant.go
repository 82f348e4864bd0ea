package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"iphone-alarms-sync/internal/domain"
	"iphone-alarms-sync/internal/logging"
)

const (
	// EventTypePrefix namespaces every event fired on the Home Assistant bus.
	EventTypePrefix = "iphone_alarms_sync_"
	// AlarmEventType carries every recorded event regardless of kind.
	AlarmEventType = EventTypePrefix + "alarm_event"
)

// HomeAssistant fires recorded events on the Home Assistant event bus through
// its REST API, so automations can trigger on them.
type HomeAssistant struct {
	client *resty.Client
}

// NewHomeAssistant returns a publisher posting to baseURL with a long-lived
// access token.
func NewHomeAssistant(baseURL, token string, timeout time.Duration) *HomeAssistant {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &HomeAssistant{client: client}
}

// EventTypes returns the bus event types fired for kind: the generic alarm
// event followed by the kind-specific one.
func EventTypes(kind domain.EventKind) []string {
	return []string{AlarmEventType, EventTypePrefix + string(kind)}
}

func (h *HomeAssistant) PublishEvent(ctx context.Context, ev domain.FiredEvent) error {
	for _, eventType := range EventTypes(ev.Event) {
		if err := h.fire(ctx, eventType, ev); err != nil {
			return err
		}
	}
	return nil
}

func (h *HomeAssistant) fire(ctx context.Context, eventType string, ev domain.FiredEvent) error {
	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(ev).
		Post("/api/events/" + eventType)
	if err != nil {
		return fmt.Errorf("fire %s: %w", eventType, err)
	}
	if resp.IsError() {
		return fmt.Errorf("fire %s: home assistant answered %s", eventType, resp.Status())
	}
	logging.Debugf("fired %s for %s on home assistant", eventType, ev.AlarmID)
	return nil
}
