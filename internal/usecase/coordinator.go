package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"iphone-alarms-sync/internal/domain"
	"iphone-alarms-sync/internal/logging"
)

// Coordinator is the primary port for one configuration entry. It owns the
// phone, its alarms and the event log, and persists every observable change.
type Coordinator interface {
	SetupPhone(ctx context.Context, name, companionDeviceID string, keepDisabled bool) (*domain.Phone, error)
	DeletePhone(ctx context.Context) error
	UpdatePhone(ctx context.Context, update domain.PhoneUpdate) error

	Sync(ctx context.Context, phoneID string, batch []domain.AlarmPayload) (domain.SyncResult, error)
	ReportAlarmEvent(ctx context.Context, alarmID string, kind domain.EventKind) (domain.Event, error)
	ReportDeviceEvent(ctx context.Context, name string) (domain.Event, error)

	DeleteAlarm(ctx context.Context, alarmID string) error
	UpdateAlarmMetadata(ctx context.Context, alarmID string, label, icon *string) error
	UpdateSnoozeTime(ctx context.Context, alarmID string, minutes int) error

	RecordOccurrence(ctx context.Context, alarmID string, at time.Time) error
	RecordPhoneOccurrence(ctx context.Context, occ domain.Occurrence) error

	Phone() *domain.Phone
	Alarm(alarmID string) (*domain.Alarm, bool)
	Alarms() map[string]*domain.Alarm
	Events(alarmID string, limit int) []domain.Event
	Location() *time.Location
	Now() time.Time

	// Subscribe registers fn to run after every state change and returns
	// a function removing it again.
	Subscribe(fn Listener) (unsubscribe func())
}

// Listener is notified after the coordinator state changed.
type Listener func()

// Option customises a coordinator.
type Option func(*coordinator)

// WithClock replaces the system clock.
func WithClock(clock domain.Clock) Option {
	return func(c *coordinator) { c.clock = clock }
}

// WithPublisher sets where fired events are announced.
func WithPublisher(p domain.EventPublisher) Option {
	return func(c *coordinator) { c.publisher = p }
}

// WithLocation sets the timezone used for wall-clock projection.
func WithLocation(loc *time.Location) Option {
	return func(c *coordinator) { c.loc = loc }
}

// WithMaxEvents caps the in-memory event log; 0 keeps everything.
func WithMaxEvents(n int) Option {
	return func(c *coordinator) { c.maxEvents = n }
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type coordinator struct {
	entryID   string
	store     domain.OptionsStore
	clock     domain.Clock
	publisher domain.EventPublisher
	loc       *time.Location
	maxEvents int

	mu     sync.RWMutex
	phone  *domain.Phone
	events []domain.Event
	stored []byte

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// NewCoordinator loads the entry's persisted options and prepares the coordinator.
// An empty slot is not an error: the coordinator starts without a phone.
func NewCoordinator(ctx context.Context, entryID string, store domain.OptionsStore, opts ...Option) (Coordinator, error) {
	if entryID == "" || store == nil {
		return nil, errors.New("entry id and store are required")
	}
	c := &coordinator{
		entryID:   entryID,
		store:     store,
		clock:     systemClock{},
		loc:       time.Local,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}

	loaded, err := store.Load(ctx, entryID)
	switch {
	case errors.Is(err, domain.ErrOptionsNotFound):
		logging.Infof("entry %s has no stored options yet", entryID)
	case err != nil:
		return nil, fmt.Errorf("load options for %s: %w", entryID, err)
	default:
		c.phone = loaded.ToPhone()
		if c.phone != nil {
			logging.Infof("loaded phone %s with %d alarms", c.phone.ID, len(c.phone.Alarms))
		}
		c.stored, _ = json.Marshal(domain.OptionsFromPhone(c.phone))
	}
	return c, nil
}

func (c *coordinator) SetupPhone(ctx context.Context, name, companionDeviceID string, keepDisabled bool) (*domain.Phone, error) {
	c.mu.Lock()
	if c.phone != nil {
		c.mu.Unlock()
		return nil, domain.ErrPhoneExists
	}
	phone, err := domain.NewPhone(name, companionDeviceID, keepDisabled)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.phone = phone
	c.persistLocked(ctx)
	snapshot := phone.Clone()
	c.mu.Unlock()

	logging.Infof("phone %s set up for entry %s", snapshot.ID, c.entryID)
	c.notify()
	return snapshot, nil
}

func (c *coordinator) DeletePhone(ctx context.Context) error {
	c.mu.Lock()
	if c.phone == nil {
		c.mu.Unlock()
		return domain.ErrPhoneNotLoaded
	}
	c.phone = nil
	c.events = nil
	c.stored = nil
	err := c.store.Delete(ctx, c.entryID)
	c.mu.Unlock()

	if err != nil {
		logging.Errorf("delete options for %s: %v", c.entryID, err)
	}
	c.notify()
	return nil
}

func (c *coordinator) UpdatePhone(ctx context.Context, update domain.PhoneUpdate) error {
	return c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		return p.Apply(update), nil
	})
}

func (c *coordinator) Sync(ctx context.Context, phoneID string, batch []domain.AlarmPayload) (domain.SyncResult, error) {
	var res domain.SyncResult
	err := c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		if phoneID != "" && phoneID != p.ID {
			return false, fmt.Errorf("%w: %s", domain.ErrPhoneMismatch, phoneID)
		}
		var err error
		res, err = p.Sync(batch, c.clock.Now())
		if err != nil {
			return false, err
		}
		// LastSyncAt moved even when no alarm did.
		return true, nil
	})
	if err != nil {
		return domain.SyncResult{}, err
	}
	logging.Debugf("sync of %d alarms: new=%v removed=%v changed=%t", len(batch), res.NewIDs, res.RemovedIDs, res.Changed)
	return res, nil
}

func (c *coordinator) ReportAlarmEvent(ctx context.Context, alarmID string, kind domain.EventKind) (domain.Event, error) {
	alarmID = domain.NormalizeAlarmID(alarmID)
	kind, err := domain.ParseAlarmEventKind(string(kind))
	if err != nil {
		return domain.Event{}, err
	}
	var ev domain.Event
	err = c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		var err error
		ev, err = p.RecordAlarmEvent(alarmID, kind, c.clock.Now())
		if err != nil {
			return false, fmt.Errorf("%w: %s", err, alarmID)
		}
		c.appendEventLocked(ev)
		return true, nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	c.publish(ctx, ev)
	return ev, nil
}

func (c *coordinator) ReportDeviceEvent(ctx context.Context, name string) (domain.Event, error) {
	var ev domain.Event
	err := c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		var err error
		ev, err = p.RecordDeviceEvent(name, c.clock.Now())
		if err != nil {
			return false, fmt.Errorf("%w: %s", err, name)
		}
		c.appendEventLocked(ev)
		return true, nil
	})
	if err != nil {
		return domain.Event{}, err
	}
	c.publish(ctx, ev)
	return ev, nil
}

func (c *coordinator) DeleteAlarm(ctx context.Context, alarmID string) error {
	alarmID = domain.NormalizeAlarmID(alarmID)
	return c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		if _, ok := p.Alarms[alarmID]; !ok {
			return false, fmt.Errorf("%w: %s", domain.ErrAlarmNotFound, alarmID)
		}
		delete(p.Alarms, alarmID)
		return true, nil
	})
}

func (c *coordinator) UpdateAlarmMetadata(ctx context.Context, alarmID string, label, icon *string) error {
	alarmID = domain.NormalizeAlarmID(alarmID)
	return c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		a, ok := p.Alarms[alarmID]
		if !ok {
			return false, fmt.Errorf("%w: %s", domain.ErrAlarmNotFound, alarmID)
		}
		changed := false
		if label != nil && *label != a.Label {
			a.Label = *label
			changed = true
		}
		if icon != nil && *icon != a.Icon {
			a.Icon = *icon
			changed = true
		}
		return changed, nil
	})
}

func (c *coordinator) UpdateSnoozeTime(ctx context.Context, alarmID string, minutes int) error {
	alarmID = domain.NormalizeAlarmID(alarmID)
	return c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		a, ok := p.Alarms[alarmID]
		if !ok {
			return false, fmt.Errorf("%w: %s", domain.ErrAlarmNotFound, alarmID)
		}
		if err := domain.ValidateSnoozeTime(a, minutes); err != nil {
			return false, err
		}
		if a.SnoozeTime == minutes {
			return false, nil
		}
		a.SnoozeTime = minutes
		return true, nil
	})
}

func (c *coordinator) RecordOccurrence(ctx context.Context, alarmID string, at time.Time) error {
	alarmID = domain.NormalizeAlarmID(alarmID)
	return c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		a, ok := p.Alarms[alarmID]
		if !ok {
			return false, fmt.Errorf("%w: %s", domain.ErrAlarmNotFound, alarmID)
		}
		if a.LastOccurrenceAt.Equal(at) {
			return false, nil
		}
		a.LastOccurrenceAt = at
		return true, nil
	})
}

func (c *coordinator) RecordPhoneOccurrence(ctx context.Context, occ domain.Occurrence) error {
	return c.mutate(ctx, func(p *domain.Phone) (bool, error) {
		if p.LastAlarmAt.Equal(occ.At) && p.LastAlarmID == occ.AlarmID {
			return false, nil
		}
		p.LastAlarmAt = occ.At
		p.LastAlarmID = occ.AlarmID
		return true, nil
	})
}

func (c *coordinator) Phone() *domain.Phone {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phone.Clone()
}

func (c *coordinator) Alarm(alarmID string) (*domain.Alarm, bool) {
	alarmID = domain.NormalizeAlarmID(alarmID)
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.phone == nil {
		return nil, false
	}
	a, ok := c.phone.Alarms[alarmID]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

func (c *coordinator) Alarms() map[string]*domain.Alarm {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*domain.Alarm)
	if c.phone == nil {
		return out
	}
	for id, a := range c.phone.Alarms {
		out[id] = a.Clone()
	}
	return out
}

// Events returns the log oldest first, optionally filtered by alarm id and
// cut to the most recent limit entries.
func (c *coordinator) Events(alarmID string, limit int) []domain.Event {
	alarmID = domain.NormalizeAlarmID(alarmID)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Event, 0, len(c.events))
	for _, ev := range c.events {
		if alarmID == "" || ev.AlarmID == alarmID {
			out = append(out, ev)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

func (c *coordinator) Location() *time.Location {
	return c.loc
}

func (c *coordinator) Now() time.Time {
	return c.clock.Now()
}

func (c *coordinator) Subscribe(fn Listener) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// mutate runs fn against the live phone, persists on change and notifies
// listeners. fn reports whether anything observable changed.
func (c *coordinator) mutate(ctx context.Context, fn func(p *domain.Phone) (bool, error)) error {
	c.mu.Lock()
	if c.phone == nil {
		c.mu.Unlock()
		return domain.ErrPhoneNotLoaded
	}
	changed, err := fn(c.phone)
	if err != nil || !changed {
		c.mu.Unlock()
		return err
	}
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.notify()
	return nil
}

// persistLocked writes the options only when their serialised form differs
// from what was last stored. Store failures are logged, not returned.
func (c *coordinator) persistLocked(ctx context.Context) {
	opts := domain.OptionsFromPhone(c.phone)
	encoded, err := json.Marshal(opts)
	if err != nil {
		logging.Errorf("encode options for %s: %v", c.entryID, err)
		return
	}
	if bytes.Equal(encoded, c.stored) {
		logging.Tracef("options for %s unchanged, skipping write", c.entryID)
		return
	}
	if err := c.store.Save(ctx, c.entryID, opts); err != nil {
		logging.Errorf("save options for %s: %v", c.entryID, err)
		return
	}
	c.stored = encoded
	logging.Debugf("options for %s saved", c.entryID)
}

func (c *coordinator) appendEventLocked(ev domain.Event) {
	c.events = append(c.events, ev)
	if c.maxEvents > 0 && len(c.events) > c.maxEvents {
		c.events = append([]domain.Event(nil), c.events[len(c.events)-c.maxEvents:]...)
	}
}

func (c *coordinator) notify() {
	c.listenersMu.Lock()
	fns := make([]Listener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

func (c *coordinator) publish(ctx context.Context, ev domain.Event) {
	if c.publisher == nil {
		return
	}
	c.mu.RLock()
	phoneID := ""
	if c.phone != nil {
		phoneID = c.phone.ID
	}
	c.mu.RUnlock()

	fired := domain.FiredEvent{
		PhoneID:    phoneID,
		AlarmID:    ev.AlarmID,
		Event:      ev.Kind,
		EventID:    ev.ID,
		OccurredAt: ev.OccurredAt,
	}
	if err := c.publisher.PublishEvent(ctx, fired); err != nil {
		logging.Warnf("publish %s event %s: %v", ev.Kind, ev.ID, err)
	}
}
