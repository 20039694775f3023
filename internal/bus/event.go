package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds are dot-namespaced, e.g. "relay.message_stored" or
// "server.status_changed". Subscribers filter by namespace prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
