package domain

import "time"

// NodeStatus is the occupancy state reported by, or forced on, a parking node.
type NodeStatus string

const (
	NodeFree      NodeStatus = "free"
	NodeReserved  NodeStatus = "reserved"
	NodeOccupied  NodeStatus = "occupied"
	NodeViolation NodeStatus = "violation"

	// Nodes may report these but the platform does not act on them.
	NodeWaitingForAuthentication NodeStatus = "waiting_for_authentication"
	NodeUnauthorized             NodeStatus = "unauthorized"
)

// Valid reports whether s is one of the statuses a node or caller may send.
func (s NodeStatus) Valid() bool {
	switch s {
	case NodeFree, NodeReserved, NodeOccupied, NodeViolation,
		NodeWaitingForAuthentication, NodeUnauthorized:
		return true
	}
	return false
}

// Ignored reports whether s is accepted as input but never stored.
func (s NodeStatus) Ignored() bool {
	return s == NodeWaitingForAuthentication || s == NodeUnauthorized
}

// Held reports whether a node in this status must reference a user.
func (s NodeStatus) Held() bool {
	return s == NodeReserved || s == NodeOccupied
}

type Node struct {
	ID         string
	Position   string
	SecretHash string // argon2 encoded node secret token
	Status     NodeStatus
	UsedBy     string // uid, set iff Status.Held()
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Consistent reports whether UsedBy agrees with Status.
func (n Node) Consistent() bool {
	return n.Status.Held() == (n.UsedBy != "")
}

// NodeCommand is pushed to the physical node over the command channel.
type NodeCommand string

const (
	CommandReserved NodeCommand = "reserved"
	CommandFree     NodeCommand = "free"
)
