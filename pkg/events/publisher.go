package events

import (
	"sync"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

// Define event types
const (
	EventPlayersPaired  EventType = "PLAYERS_PAIRED"
	EventSessionMessage EventType = "SESSION_MESSAGE"
	EventSessionEnded   EventType = "SESSION_ENDED"
	EventStatsChanged   EventType = "STATS_CHANGED"
)

// Event represents an event in the system
type Event struct {
	Type      EventType
	SessionID string // Optional, can be empty for non-session events

	// Recipients limits delivery to specific connections. Empty means
	// every registered connection.
	Recipients []uuid.UUID

	Payload interface{}
}

// PairedNotice is the payload of EventPlayersPaired. It carries player
// identities, not connections; the hub resolves whoever is still online.
type PairedNotice struct {
	SessionID string
	WhiteID   string
	BlackID   string
}

// Handler is a function that processes events
type Handler func(event Event)

// Publisher is the central event publisher
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
}

// NewPublisher creates a new event publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (p *Publisher) Subscribe(eventType EventType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
}

// Publish broadcasts an event to all subscribers
func (p *Publisher) Publish(event Event) {
	p.mu.RLock()
	handlers := p.subscribers[event.Type]
	p.mu.RUnlock()

	// Call all handlers
	for _, handler := range handlers {
		go handler(event) // Run handlers concurrently
	}
}
