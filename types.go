package nest

import "time"

// Role is an operator's RBAC role.
type Role string

const (
	// RoleKeeper may submit missions, file appeals, and invoke Article 50.
	RoleKeeper Role = "keeper"
	// RoleObserver may read case law and subscribe to event streams.
	RoleObserver Role = "observer"
)

// Event is the public representation of one deliberation lifecycle
// notification. It is a curated view of the internal event type for use
// in extension interfaces. No internal package imports — safe to use
// from outside the module.
type Event struct {
	Type      string
	MissionID string
	Payload   map[string]any
	EmittedAt time.Time
}
