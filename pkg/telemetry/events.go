package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable occurrence in the catalog or evaluator.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// Subject is the catalog item, provider or task the event is about.
	Subject string `json:"subject,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeItemAdded       = "catalog.item_added"
	EventTypeSpecCreated     = "catalog.spec_created"
	EventTypeSpecFailed      = "catalog.spec_failed"
	EventTypePolicyViolation = "policy.violation"
	EventTypeLookupFailed    = "external_config.lookup_failed"
	EventTypeTaskFailed      = "task.failed"
)

// Event severity levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers. Delivery is synchronous
// unless EnableAsync is set, in which case a single goroutine drains a
// bounded buffer.
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

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) *EventPublisher {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if !ep.config.EnableAsync {
		ep.deliverEvent(event)
		return nil
	}

	select {
	case <-ep.ctx.Done():
		return fmt.Errorf("event publisher stopped")
	default:
	}

	select {
	case ep.buffer <- event:
		return nil
	default:
		return fmt.Errorf("event buffer full, event %s dropped", event.Type)
	}
}

// PublishItemAdded publishes a catalog addition.
func (ep *EventPublisher) PublishItemAdded(kind string) error {
	return ep.Publish(Event{
		Type:    EventTypeItemAdded,
		Source:  "catalog",
		Message: fmt.Sprintf("Added %s item to catalog", kind),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"kind": kind,
		},
	})
}

// PublishSpecCreated publishes the outcome of a spec creation.
func (ep *EventPublisher) PublishSpecCreated(kind, strategy string, err error) error {
	if err != nil {
		return ep.Publish(Event{
			Type:    EventTypeSpecFailed,
			Source:  "catalog",
			Message: fmt.Sprintf("Failed to create %s spec: %v", kind, err),
			Level:   EventLevelError,
			Data: map[string]interface{}{
				"kind":     kind,
				"strategy": strategy,
			},
		})
	}
	return ep.Publish(Event{
		Type:    EventTypeSpecCreated,
		Source:  "catalog",
		Message: fmt.Sprintf("Created %s spec", kind),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"kind":     kind,
			"strategy": strategy,
		},
	})
}

// PublishPolicyViolation publishes a rejected catalog addition.
func (ep *EventPublisher) PublishPolicyViolation(itemID, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy_engine",
		Subject: itemID,
		Message: fmt.Sprintf("Catalog item %s rejected: %s", itemID, reason),
		Level:   EventLevelError,
	})
}

// PublishLookupFailed publishes a failed external config lookup.
func (ep *EventPublisher) PublishLookupFailed(provider, outcome string) error {
	return ep.Publish(Event{
		Type:    EventTypeLookupFailed,
		Source:  "external_config",
		Subject: provider,
		Message: fmt.Sprintf("External config lookup on %s: %s", provider, outcome),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"outcome": outcome,
		},
	})
}

// PublishTaskFailed publishes a failed task.
func (ep *EventPublisher) PublishTaskFailed(displayName string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeTaskFailed,
		Source:  "scheduler",
		Subject: displayName,
		Message: fmt.Sprintf("Task %s failed", displayName),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts everything.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents delivers buffered events in batches.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			// Drain whatever else is queued before delivering.
			for len(batch) < ep.config.MaxBatchSize && len(ep.buffer) > 0 {
				batch = append(batch, <-ep.buffer)
			}
			flush()

		case <-ep.ctx.Done():
			for len(ep.buffer) > 0 {
				batch = append(batch, <-ep.buffer)
			}
			flush()
			return
		}
	}
}

// deliverEvent calls every matching subscriber in order.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	subscribers := make([]subscriberEntry, len(ep.subscribers))
	copy(subscribers, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown stops the publisher after delivering buffered events.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
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
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}
