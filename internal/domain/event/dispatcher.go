package event

import (
	"sync"
)

// EventHandler handles domain events
type EventHandler interface {
	// Handle processes the event
	Handle(event DomainEvent) error
	// HandledEvents returns the event names this handler handles
	HandledEvents() []string
}

// EventDispatcher dispatches domain events to registered handlers
type EventDispatcher interface {
	// Dispatch sends an event to all registered handlers
	Dispatch(event DomainEvent)
	// DispatchAll dispatches multiple events
	DispatchAll(events []DomainEvent)
	// Subscribe registers a handler for events
	Subscribe(handler EventHandler)
	// Unsubscribe removes a handler
	Unsubscribe(handler EventHandler)
}

// AllEvents subscribes a handler to every event name
const AllEvents = "*"

// HandlerFunc adapts a function into an EventHandler
type HandlerFunc struct {
	Events []string
	Fn     func(event DomainEvent)
}

// Handle calls Fn
func (h *HandlerFunc) Handle(event DomainEvent) error {
	h.Fn(event)
	return nil
}

// HandledEvents returns Events, or all events when empty
func (h *HandlerFunc) HandledEvents() []string {
	if len(h.Events) == 0 {
		return []string{AllEvents}
	}
	return h.Events
}

// InMemoryDispatcher is an in-memory implementation of EventDispatcher.
// Async dispatch hands events to a single background drain, so handlers still
// observe them in dispatch order.
type InMemoryDispatcher struct {
	handlers map[string][]EventHandler
	mu       sync.RWMutex
	async    bool

	queueMu  sync.Mutex
	queue    []DomainEvent
	draining bool
}

// NewInMemoryDispatcher creates a new InMemoryDispatcher
func NewInMemoryDispatcher(async bool) *InMemoryDispatcher {
	return &InMemoryDispatcher{
		handlers: make(map[string][]EventHandler),
		async:    async,
	}
}

// Dispatch sends an event to all registered handlers
func (d *InMemoryDispatcher) Dispatch(event DomainEvent) {
	d.DispatchAll([]DomainEvent{event})
}

// DispatchAll dispatches multiple events in order
func (d *InMemoryDispatcher) DispatchAll(events []DomainEvent) {
	if !d.async {
		for _, event := range events {
			d.deliver(event)
		}
		return
	}

	d.queueMu.Lock()
	d.queue = append(d.queue, events...)
	if d.draining {
		d.queueMu.Unlock()
		return
	}
	d.draining = true
	d.queueMu.Unlock()

	go d.drain()
}

// drain delivers queued events until the queue is empty
func (d *InMemoryDispatcher) drain() {
	for {
		d.queueMu.Lock()
		if len(d.queue) == 0 {
			d.draining = false
			d.queueMu.Unlock()
			return
		}
		event := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		d.queueMu.Unlock()

		d.deliver(event)
	}
}

func (d *InMemoryDispatcher) deliver(event DomainEvent) {
	d.mu.RLock()
	named := d.handlers[event.EventName()]
	wildcard := d.handlers[AllEvents]
	combined := make([]EventHandler, 0, len(named)+len(wildcard))
	combined = append(combined, named...)
	combined = append(combined, wildcard...)
	d.mu.RUnlock()

	for _, handler := range combined {
		_ = handler.Handle(event)
	}
}

// Subscribe registers a handler for events
func (d *InMemoryDispatcher) Subscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		d.handlers[eventName] = append(d.handlers[eventName], handler)
	}
}

// Unsubscribe removes a handler
func (d *InMemoryDispatcher) Unsubscribe(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, eventName := range handler.HandledEvents() {
		handlers := d.handlers[eventName]
		for i, h := range handlers {
			if h == handler {
				d.handlers[eventName] = append(handlers[:i:i], handlers[i+1:]...)
				break
			}
		}
	}
}

// NullDispatcher is a no-op dispatcher for when events are not needed
type NullDispatcher struct{}

// NewNullDispatcher creates a new NullDispatcher
func NewNullDispatcher() *NullDispatcher {
	return &NullDispatcher{}
}

// Dispatch does nothing
func (d *NullDispatcher) Dispatch(event DomainEvent) {}

// DispatchAll does nothing
func (d *NullDispatcher) DispatchAll(events []DomainEvent) {}

// Subscribe does nothing
func (d *NullDispatcher) Subscribe(handler EventHandler) {}

// Unsubscribe does nothing
func (d *NullDispatcher) Unsubscribe(handler EventHandler) {}
