package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a lifecycle event of a tracked NS record.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`

	Owner    string `json:"owner,omitempty"`
	RecordID string `json:"nsr_id,omitempty"`

	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	Data map[string]interface{} `json:"data,omitempty"`
}

const (
	EventTypeRecordDeployed      = "record.deployed"
	EventTypeRecordReleased      = "record.released"
	EventTypeRecordStatusChanged = "record.status_changed"
	EventTypeReconcileCompleted  = "reconcile.completed"
	EventTypeDeployFailed        = "deploy.failed"
)

const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

type EventSubscriber func(event Event)

// EventFilter reports whether a subscriber wants event.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, asynchronously when
// EnableAsync is set.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher returns a publisher that drops every event when
// cfg.Enabled is false.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.run()
	}

	return ep, nil
}

// Publish stamps event with an id and time and queues it. A full buffer
// drops the event and reports it. Publish never blocks.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliver(event)
	return nil
}

// PublishRecordDeployed publishes a record deployed event.
func (ep *EventPublisher) PublishRecordDeployed(owner, recordID, status string) error {
	return ep.Publish(Event{
		Type:     EventTypeRecordDeployed,
		Source:   "engine",
		Owner:    owner,
		RecordID: recordID,
		Message:  fmt.Sprintf("NS record %s deployed for %s", recordID, owner),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"status": status,
		},
	})
}

// PublishDeployFailed publishes a failed deployment.
func (ep *EventPublisher) PublishDeployFailed(owner, resourceID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeDeployFailed,
		Source:  "engine",
		Owner:   owner,
		Message: fmt.Sprintf("Deployment of %s for %s failed: %s", resourceID, owner, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"resource_id": resourceID,
			"reason":      reason,
		},
	})
}

// PublishRecordReleased publishes a record released event.
func (ep *EventPublisher) PublishRecordReleased(owner, recordID string) error {
	return ep.Publish(Event{
		Type:     EventTypeRecordReleased,
		Source:   "engine",
		Owner:    owner,
		RecordID: recordID,
		Message:  fmt.Sprintf("NS record %s released for %s", recordID, owner),
		Level:    EventLevelInfo,
	})
}

// PublishRecordStatusChanged publishes a status transition observed by the reconciler.
func (ep *EventPublisher) PublishRecordStatusChanged(owner, recordID, oldStatus, newStatus string) error {
	return ep.Publish(Event{
		Type:     EventTypeRecordStatusChanged,
		Source:   "reconciler",
		Owner:    owner,
		RecordID: recordID,
		Message:  fmt.Sprintf("NS record %s changed from %s to %s", recordID, oldStatus, newStatus),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"old_status": oldStatus,
			"new_status": newStatus,
		},
	})
}

// PublishReconcileCompleted publishes the owner-grouped result of one cycle.
// updates maps each owner to the serialized records refreshed for it.
func (ep *EventPublisher) PublishReconcileCompleted(updates map[string][]string) error {
	total := 0
	for _, records := range updates {
		total += len(records)
	}
	return ep.Publish(Event{
		Type:    EventTypeReconcileCompleted,
		Source:  "reconciler",
		Message: fmt.Sprintf("Reconciliation refreshed %d records for %d owners", total, len(updates)),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"updates": updates,
		},
	})
}

// Subscribe registers fn for the events accepted by filter, or for every
// event when filter is nil. Subscribers registered after an event was
// published do not see it.
func (ep *EventPublisher) Subscribe(fn EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	ep.subscribers = append(ep.subscribers, subscriberEntry{subscriber: fn, filter: filter})
	ep.mu.Unlock()
}

// run delivers buffered events in publish order. Once the publisher is
// cancelled it drains the buffer and exits.
func (ep *EventPublisher) run() {
	defer ep.wg.Done()
	for {
		select {
		case event := <-ep.buffer:
			ep.deliver(event)
		case <-ep.ctx.Done():
			for len(ep.buffer) > 0 {
				ep.deliver(<-ep.buffer)
			}
			return
		}
	}
}

// deliver hands event to every matching subscriber, one at a time, so a
// subscriber sees the status changes of a record in order.
func (ep *EventPublisher) deliver(event Event) {
	ep.mu.RLock()
	subscribers := ep.subscribers
	ep.mu.RUnlock()

	for _, entry := range subscribers {
		if entry.filter == nil || entry.filter(event) {
			entry.subscriber(event)
		}
	}
}

// Shutdown stops accepting events and waits until the buffered ones have
// been delivered or ctx expires.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}
	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout: %w", ctx.Err())
	}
}

// FilterByType accepts events of the given types.
func FilterByType(types ...string) EventFilter {
	accept := make(map[string]struct{}, len(types))
	for _, t := range types {
		accept[t] = struct{}{}
	}
	return func(event Event) bool {
		_, ok := accept[event.Type]
		return ok
	}
}

// FilterByOwner accepts events about one experimenter's records.
func FilterByOwner(owner string) EventFilter {
	return func(event Event) bool { return event.Owner == owner }
}
