package pubsub

import (
	"context"
	"encoding/json"
)

// Event types published on session topics
const (
	EventTypeState = "state" // full session state snapshot
	EventTypeFocus = "focus" // ask the surface to center on an entity
	EventTypeBye   = "bye"   // session evicted, stream ends
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "session/4f9d...", "topology")
	Type    string          `json:"type"`    // Event type (e.g., "state", "focus", "snapshot")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// SessionTopic names the per-session event stream
func SessionTopic(sessionID string) string {
	return "session/" + sessionID
}

// TopologyTopic carries inventory snapshot announcements
const TopologyTopic = "topology"

// TopologyUpdate announces that a new inventory snapshot was installed
type TopologyUpdate struct {
	Version    uint64 `json:"version"`
	Metros     int    `json:"metros"`
	Devices    int    `json:"devices"`
	Links      int    `json:"links"`
	Validators int    `json:"validators"`
}

// FocusRequest asks the rendering surfaces to center on an entity,
// typically after a URL-restored selection resolves
type FocusRequest struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}
