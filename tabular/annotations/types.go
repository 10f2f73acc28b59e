// Package annotations provides a clean, low-overhead annotation system for
// tracking store, view and query activity and debugging information.
package annotations

import (
	"sync"
	"time"
)

// Event name constants following hierarchical naming pattern
const (
	// Store lifecycle
	StoreRecorded  = "store/recorded"
	StoreCommitted = "store/committed"
	StoreReleased  = "store/released"

	// View operations
	ViewIndexBuilding = "view/index.building"
	ViewIndexBuilt    = "view/index.built"

	// Query lifecycle
	QueryInvoked   = "query/invoked"
	QuerySorted    = "query/sorted"
	QueryComplete  = "query/completed"
	QueryRowsFound = "query/rows.materialized"

	// Catalog
	DatasetCreated = "dataset/created"
	DatasetDeleted = "dataset/deleted"

	// Ingestion
	IngestProgress = "ingest/progress"
	IngestComplete = "ingest/completed"

	// Errors
	ErrorQueryParsing = "error/query.parsing"
	ErrorBackend      = "error/backend"
)

// Event represents a single annotation event.
type Event struct {
	Name    string                 // Event name using hierarchical constants above
	Start   time.Time              // Start timestamp
	End     time.Time              // End timestamp
	Latency time.Duration          // Duration (End - Start)
	Data    map[string]interface{} // Additional event-specific data
}

// Handler processes annotation events as they occur.
type Handler func(event Event)

// Collector accumulates events and forwards them to a handler.
// A nil *Collector is valid and records nothing.
type Collector struct {
	handler Handler
	events  []Event
	mu      sync.Mutex
}

// NewCollector creates a new annotation collector. It returns nil for a nil
// handler so disabled annotation costs a single nil check.
func NewCollector(handler Handler) *Collector {
	if handler == nil {
		return nil
	}
	return &Collector{
		handler: handler,
		events:  make([]Event, 0, 32),
	}
}

// Enabled reports whether events are being recorded
func (c *Collector) Enabled() bool {
	return c != nil
}

// Handler returns the underlying event handler.
func (c *Collector) Handler() Handler {
	if c == nil {
		return nil
	}
	return c.handler
}

// Add records a new event.
// Thread-safe for concurrent access.
func (c *Collector) Add(event Event) {
	if c == nil {
		return
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()

	// Call handler outside the lock to avoid deadlocks
	c.handler(event)
}

// AddTiming records an event that started at start and ends now.
func (c *Collector) AddTiming(name string, start time.Time, data map[string]interface{}) {
	if c == nil {
		return
	}

	end := time.Now()
	c.Add(Event{
		Name:    name,
		Start:   start,
		End:     end,
		Latency: end.Sub(start),
		Data:    data,
	})
}

// Events returns a copy of all collected events.
func (c *Collector) Events() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	eventsCopy := make([]Event, len(c.events))
	copy(eventsCopy, c.events)
	return eventsCopy
}

// Reset clears the collector for reuse.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = c.events[:0]
}
