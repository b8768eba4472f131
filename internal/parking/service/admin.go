package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/lock"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/cryptox"
	"github.com/aussiebroadwan/parking/pkg/slogx"
)

// AdminService covers fleet and account management. Deletions reconcile the
// other side (ledger or nodes) before the document goes away.
type AdminService struct {
	Store  store.Store
	Nodes  *NodeStateMachine
	Ledger *ReservationLedger
	Locks  lock.Locker
}

// CreateNode registers a node and returns its plaintext token. A token is
// generated when none is given. Only the hash is stored, so this is the
// only time the token can be read back.
func (s *AdminService) CreateNode(ctx context.Context, id, position, token string) (string, error) {
	log := slogx.FromContext(ctx).With(slog.String("node_id", id))

	if id == "" {
		return "", ErrInvalidRequest
	}

	// 1. Generate a token if the caller did not bring one.
	if token == "" {
		var err error
		token, err = cryptox.GenerateToken(cryptox.TokenSize256)
		if err != nil {
			log.Error("failed to generate node token", slog.Any("error", err))
			return "", err
		}
	}

	// 2. Hash and store.
	hash, err := cryptox.HashSecret(token)
	if err != nil {
		return "", fmt.Errorf("hash node token: %w", err)
	}

	err = s.Store.Nodes().CreateNode(ctx, domain.Node{
		ID:         id,
		Position:   position,
		SecretHash: hash,
		Status:     domain.NodeFree,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return "", ErrAlreadyExists
		}
		log.Error("failed to create node", slog.Any("error", err))
		return "", err
	}

	log.Info("node created")
	return token, nil
}

// DeleteNode removes a node, releasing its holder's reservation or parked
// flag first.
func (s *AdminService) DeleteNode(ctx context.Context, id string) error {
	node, release, err := s.Nodes.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	if err := s.releaseHolder(ctx, node); err != nil {
		return err
	}

	if err := s.Store.Nodes().DeleteNode(ctx, id); err != nil {
		return mapNodeErr(err)
	}

	slogx.FromContext(ctx).Info("node deleted", slog.String("node_id", id))
	return nil
}

func (s *AdminService) releaseHolder(ctx context.Context, node domain.Node) error {
	if node.UsedBy == "" {
		return nil
	}

	var err error
	switch node.Status {
	case domain.NodeReserved:
		err = s.Ledger.Cancel(ctx, node.UsedBy)
	case domain.NodeOccupied:
		err = s.Ledger.MarkParked(ctx, node.UsedBy, false)
	}
	if errors.Is(err, ErrUserNotFound) {
		return nil
	}
	return err
}

func (s *AdminService) GetNode(ctx context.Context, id string) (domain.Node, error) {
	n, err := s.Store.Nodes().GetNode(ctx, id)
	return n, mapNodeErr(err)
}

func (s *AdminService) ListNodes(ctx context.Context, filter store.NodeFilter) ([]domain.Node, error) {
	nodes, err := s.Store.Nodes().ListNodes(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodes, nil
}

type NewUser struct {
	ID              string
	Username        string
	Email           string
	IsAdmin         bool
	BadgeExpiration time.Time
	AuthSecret      string
}

func (s *AdminService) CreateUser(ctx context.Context, nu NewUser) error {
	if nu.ID == "" || nu.Username == "" || nu.BadgeExpiration.IsZero() {
		return ErrInvalidRequest
	}

	err := s.Store.Users().CreateUser(ctx, domain.User{
		ID:              nu.ID,
		Username:        nu.Username,
		Email:           nu.Email,
		IsAdmin:         nu.IsAdmin,
		BadgeExpiration: nu.BadgeExpiration,
		AuthSecret:      nu.AuthSecret,
		Account:         domain.AccountActive,
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user created", slog.String("uid", nu.ID))
	return nil
}

func (s *AdminService) GetUser(ctx context.Context, uid string) (domain.User, error) {
	u, err := s.Store.Users().GetUser(ctx, uid)
	return u, mapUserErr(err)
}

func (s *AdminService) ListUsers(ctx context.Context, filter store.UserFilter) ([]domain.User, error) {
	users, err := s.Store.Users().ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UserUpdate edits profile fields. The lockout and reservation bookkeeping
// are not reachable from here.
type UserUpdate struct {
	Username        *string
	Email           *string
	IsAdmin         *bool
	BadgeExpiration *time.Time
}

func (s *AdminService) UpdateUser(ctx context.Context, uid string, upd UserUpdate) error {
	unlock, err := s.Locks.Lock(ctx, lock.UserKey(uid))
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	return mapUserErr(s.Store.Users().UpdateUser(ctx, uid, store.UserPatch{
		Username:        upd.Username,
		Email:           upd.Email,
		IsAdmin:         upd.IsAdmin,
		BadgeExpiration: upd.BadgeExpiration,
	}))
}

// UnlockUser is the only way out of a cloning lockout. The old badge secret
// is compromised, so a fresh one has to be written to the new badge.
func (s *AdminService) UnlockUser(ctx context.Context, uid, newSecret string) error {
	log := slogx.FromContext(ctx).With(slog.String("uid", uid))

	if newSecret == "" {
		return ErrInvalidRequest
	}

	unlock, err := s.Locks.Lock(ctx, lock.UserKey(uid))
	if err != nil {
		return fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	err = s.Store.Users().UpdateUserIf(ctx, uid,
		store.UserCondition{Account: store.Ptr(domain.AccountLocked)},
		store.UserPatch{
			Account:    store.Ptr(domain.AccountActive),
			AuthSecret: store.Ptr(newSecret),
		},
	)
	if errors.Is(err, store.ErrConflict) {
		log.Info("unlock requested for an active account")
		return ErrInvalidTransition
	}
	if err != nil {
		return mapUserErr(err)
	}

	log.Info("account unlocked")
	return nil
}

// deleteUserAttempts bounds how often DeleteUser frees nodes the user keeps
// claiming while it runs.
const deleteUserAttempts = 3

// DeleteUser frees every node the user holds, then removes the user. The
// held set is re-read under the user lock so a node claimed meanwhile is
// never left pointing at a deleted user.
func (s *AdminService) DeleteUser(ctx context.Context, uid string) error {
	log := slogx.FromContext(ctx).With(slog.String("uid", uid))

	if _, err := s.Store.Users().GetUser(ctx, uid); err != nil {
		return mapUserErr(err)
	}

	for range deleteUserAttempts {
		held, err := s.Store.Nodes().ListNodes(ctx, store.NodeFilter{UsedBy: uid})
		if err != nil {
			return fmt.Errorf("list held nodes: %w", err)
		}
		for _, n := range held {
			if err := s.freeNodeOf(ctx, n.ID, uid); err != nil {
				return err
			}
			log.Info("node freed for deleted user", slog.String("node_id", n.ID))
		}

		deleted, err := s.deleteIfNothingHeld(ctx, uid)
		if err != nil {
			return err
		}
		if deleted {
			log.Info("user deleted")
			return nil
		}
		log.Info("user claimed a node during delete, retrying")
	}
	return fmt.Errorf("delete user %s: still claiming nodes: %w", uid, ErrInvalidTransition)
}

// deleteIfNothingHeld removes the user while holding its lock, unless a
// node still names it. Every claim on a node takes this lock too.
func (s *AdminService) deleteIfNothingHeld(ctx context.Context, uid string) (bool, error) {
	unlock, err := s.Locks.Lock(ctx, lock.UserKey(uid))
	if err != nil {
		return false, fmt.Errorf("lock user: %w", err)
	}
	defer unlock()

	held, err := s.Store.Nodes().ListNodes(ctx, store.NodeFilter{UsedBy: uid})
	if err != nil {
		return false, fmt.Errorf("list held nodes: %w", err)
	}
	if len(held) > 0 {
		return false, nil
	}
	if err := s.Store.Users().DeleteUser(ctx, uid); err != nil {
		return false, mapUserErr(err)
	}
	return true, nil
}

func (s *AdminService) freeNodeOf(ctx context.Context, nodeID, uid string) error {
	node, release, err := s.Nodes.acquire(ctx, nodeID, uid)
	if errors.Is(err, ErrNodeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	defer release()

	// Re-checked under the lock, the node may have moved on.
	if node.UsedBy != uid {
		return nil
	}
	return mapNodeErr(s.Store.Nodes().UpdateNode(ctx, nodeID, freePatch()))
}
