package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned by conditional updates when the document exists
	// but no longer matches the guard.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite, mongo)
// implement this and expose one sub-repository per entity kind.
//
// There is no Tx here. Every mutation is a single document update, the
// conditional variants give compare-and-swap on that document, and anything
// spanning documents is serialized with a lock.Locker.
type Store interface {
	Nodes() Nodes
	Users() Users

	// ApplyMigrations brings the schema (or indexes) up to date.
	ApplyMigrations() error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// NodeFilter narrows ListNodes. Zero fields match everything.
type NodeFilter struct {
	Status domain.NodeStatus
	UsedBy string
}

// NodePatch is a merge update, nil fields are left untouched.
type NodePatch struct {
	Status     *domain.NodeStatus
	UsedBy     *string
	Position   *string
	SecretHash *string
}

// NodeCondition guards UpdateNodeIf. Status matches any of the listed values.
type NodeCondition struct {
	Status []domain.NodeStatus
	UsedBy *string
}

type Nodes interface {
	GetNode(ctx context.Context, id string) (domain.Node, error)
	ListNodes(ctx context.Context, filter NodeFilter) ([]domain.Node, error)

	// CreateNode inserts a node, ErrAlreadyExists if the id is taken.
	CreateNode(ctx context.Context, n domain.Node) error

	// UpdateNode merges patch into the node and bumps updated_at. An empty
	// patch only bumps updated_at.
	UpdateNode(ctx context.Context, id string, patch NodePatch) error

	// UpdateNodeIf applies patch only if the node currently matches cond.
	// Returns ErrNotFound for unknown ids and ErrConflict on a guard miss.
	UpdateNodeIf(ctx context.Context, id string, cond NodeCondition, patch NodePatch) error

	DeleteNode(ctx context.Context, id string) error
}

// UserFilter narrows ListUsers. Nil fields match everything.
type UserFilter struct {
	IsAdmin  *bool
	IsParked *bool
	Locked   *bool
}

type UserPatch struct {
	Username        *string
	Email           *string
	IsAdmin         *bool
	BadgeExpiration *time.Time
	AuthSecret      *string
	Account         *domain.AccountState
	IsParked        *bool
	NbReservations  *int
	PwdResetToken   *string
}

type UserCondition struct {
	AuthSecret     *string
	Account        *domain.AccountState
	NbReservations *int
	IsParked       *bool
}

type Users interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error)
	CreateUser(ctx context.Context, u domain.User) error
	UpdateUser(ctx context.Context, id string, patch UserPatch) error
	UpdateUserIf(ctx context.Context, id string, cond UserCondition, patch UserPatch) error
	DeleteUser(ctx context.Context, id string) error
}

// Ptr is a small helper for building patches and conditions.
func Ptr[T any](v T) *T { return &v }
