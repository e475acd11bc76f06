package bus

import "time"

// Event represents a lifecycle or domain event published on the bus.
//
// Kinds are dot-namespaced. The daemon uses:
//
//	net.online, net.offline, net.status_changed
//	lifecycle.installed, lifecycle.activated
//	outbox.enqueued, outbox.replayed
//	notification.shown, notification.closed
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
