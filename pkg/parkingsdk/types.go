package parkingsdk

import "time"

// ============================================================================
// Common
// ============================================================================

// StatusResponse is the body of every use case response, success or not.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Broker   string `json:"broker"`
}

// ============================================================================
// Node wire format
// ============================================================================

// BadgeScanRequest is what a node posts after reading a badge.
type BadgeScanRequest struct {
	Token    string     `json:"token"`
	UserData *BadgeRead `json:"user_data"`
}

// BadgeRead carries the badge UID, the secret read from the badge and the
// secret the node wrote back in its place.
type BadgeRead struct {
	UID          string `json:"UID"`
	AuthBytes    string `json:"AUTH_BYTES"`
	NewAuthBytes string `json:"NEW_AUTH_BYTES"`
}

const (
	SourceNode = "node"
	SourceUI   = "ui"
)

type StatusUpdateRequest struct {
	Source string        `json:"source"`
	Token  string        `json:"token,omitempty"`
	Data   *UpdateFields `json:"data_to_update"`
}

type UpdateFields struct {
	Status  *string        `json:"status,omitempty"`
	UsedBy  *string        `json:"used_by,omitempty"`
	Profile *ProfileFields `json:"profile,omitempty"`
}

type ProfileFields struct {
	Position *string `json:"position,omitempty"`
	Token    *string `json:"token,omitempty"`
}

// ============================================================================
// Nodes
// ============================================================================

// NodeView is a node as the API shows it. UsedBy and the timestamps are only
// sent to admins.
type NodeView struct {
	ID        string `json:"id"`
	Position  string `json:"position"`
	Status    string `json:"status"`
	UsedByMe  bool   `json:"used_by_me"`
	UsedBy    string `json:"used_by,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type ListNodesResponse struct {
	Nodes []NodeView `json:"nodes"`
}

type CreateNodeRequest struct {
	ID       string `json:"id"`
	Position string `json:"position"`
	Token    string `json:"token,omitempty"`
}

// CreateNodeResponse carries the plaintext node token. It is never shown again.
type CreateNodeResponse struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

// ============================================================================
// Users
// ============================================================================

type UserView struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	IsAdmin           bool   `json:"is_admin"`
	BadgeExpiration   string `json:"badge_expiration"`
	ViolationDetected bool   `json:"violation_detected"`
	IsParked          bool   `json:"is_parked"`
	NbReservations    int    `json:"nb_reservations"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

type ListUsersResponse struct {
	Users []UserView `json:"users"`
}

type CreateUserRequest struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	Email           string    `json:"email"`
	IsAdmin         bool      `json:"is_admin"`
	BadgeExpiration time.Time `json:"badge_expiration"`
	AuthSecret      string    `json:"auth_secret"`
}

type UpdateUserRequest struct {
	Username        *string    `json:"username,omitempty"`
	Email           *string    `json:"email,omitempty"`
	IsAdmin         *bool      `json:"is_admin,omitempty"`
	BadgeExpiration *time.Time `json:"badge_expiration,omitempty"`
}

// UnlockUserRequest holds the secret written to the replacement badge.
type UnlockUserRequest struct {
	AuthSecret string `json:"auth_secret"`
}
