package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/lock"
	"github.com/aussiebroadwan/parking/internal/parking/metrics"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/cryptox"
	"github.com/aussiebroadwan/parking/pkg/slogx"
)

// errNodeChanged means a guarded node update missed while the node lock was
// held, i.e. something wrote the node without taking the lock.
var errNodeChanged = errors.New("node changed while locked")

// NodeStateMachine owns every node status transition. Exported methods take
// the node lock (and the lock of every user they touch); the unexported
// variants expect the caller to hold them already.
type NodeStateMachine struct {
	Store   store.Store
	Ledger  *ReservationLedger
	Effects *Effects
	Locks   lock.Locker
	Metrics metrics.Recorder
	Now     func() time.Time
}

// NodeUpdate is an administrative write. Nil fields are left untouched.
type NodeUpdate struct {
	Status   *domain.NodeStatus
	UsedBy   *string
	Position *string
	Token    *string // plaintext, hashed before storage
}

// acquire locks the node, loads it, then locks the node's current holder and
// every uid given. User locks are taken in sorted order so two callers that
// need the same pair of users cannot deadlock.
func (m *NodeStateMachine) acquire(ctx context.Context, nodeID string, uids ...string) (domain.Node, func(), error) {
	start := time.Now()

	unlockNode, err := m.Locks.Lock(ctx, lock.NodeKey(nodeID))
	if err != nil {
		return domain.Node{}, nil, fmt.Errorf("lock node: %w", err)
	}

	node, err := m.Store.Nodes().GetNode(ctx, nodeID)
	if err != nil {
		unlockNode()
		return domain.Node{}, nil, mapNodeErr(err)
	}

	users := append([]string{node.UsedBy}, uids...)
	slices.Sort(users)
	users = slices.Compact(users)

	unlocks := []func(){unlockNode}
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}

	for _, uid := range users {
		if uid == "" {
			continue
		}
		unlock, err := m.Locks.Lock(ctx, lock.UserKey(uid))
		if err != nil {
			release()
			return domain.Node{}, nil, fmt.Errorf("lock user: %w", err)
		}
		unlocks = append(unlocks, unlock)
	}

	m.metrics().RecordLockWait(time.Since(start))
	return node, release, nil
}

// NewStatusFromNode applies a status reported by the physical node.
func (m *NodeStateMachine) NewStatusFromNode(ctx context.Context, nodeID string, status domain.NodeStatus) error {
	if !status.Valid() {
		return ErrInvalidRequest
	}

	node, release, err := m.acquire(ctx, nodeID)
	if err != nil {
		return err
	}
	defer release()

	return m.newStatusFromNode(ctx, node, status)
}

func (m *NodeStateMachine) newStatusFromNode(ctx context.Context, node domain.Node, to domain.NodeStatus) error {
	log := slogx.FromContext(ctx).With(
		slog.String("node_id", node.ID),
		slog.String("from", string(node.Status)),
		slog.String("to", string(to)),
	)

	if to.Ignored() || to == node.Status {
		return m.touch(ctx, node.ID)
	}

	switch {
	case to == domain.NodeViolation && (node.Status == domain.NodeFree || node.Status == domain.NodeReserved):
		if err := m.markViolation(ctx, node); err != nil {
			return err
		}
		log.Warn("illegal parking reported")
		m.Effects.AlertOperator(ctx, illegalParkingAlert(m.now(), node.ID, node.Position))
		return nil

	case to == domain.NodeFree && node.Status == domain.NodeViolation:
		return m.transition(ctx, node, domain.NodeFree, store.NodePatch{Status: store.Ptr(domain.NodeFree)})

	case to == domain.NodeFree && node.Status == domain.NodeReserved:
		return m.reservationTimedOut(ctx, node)

	case to == domain.NodeFree && node.Status == domain.NodeOccupied:
		if err := m.transition(ctx, node, domain.NodeFree, freePatch()); err != nil {
			return err
		}
		if err := m.Ledger.MarkParked(ctx, node.UsedBy, false); err != nil && !errors.Is(err, ErrUserNotFound) {
			return err
		}
		return nil
	}

	log.Info("rejected node transition")
	return ErrInvalidTransition
}

func (m *NodeStateMachine) reservationTimedOut(ctx context.Context, node domain.Node) error {
	if err := m.transition(ctx, node, domain.NodeFree, freePatch()); err != nil {
		return err
	}

	holder, err := m.Store.Users().GetUser(ctx, node.UsedBy)
	if err != nil {
		// The node is already free, a vanished holder has nothing to release.
		if errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Warn("reservation holder no longer exists",
				slog.String("node_id", node.ID),
				slog.String("uid", node.UsedBy),
			)
			return nil
		}
		return mapUserErr(err)
	}

	if err := m.Ledger.Cancel(ctx, holder.ID); err != nil {
		return err
	}

	// The node reported the timeout itself, so no free command is echoed back.
	m.Effects.EmailUser(ctx, holder.Email, timeoutSubject, timeoutEmail(holder.Username, node.Position))
	return nil
}

// Reserve books a free node for uid.
func (m *NodeStateMachine) Reserve(ctx context.Context, nodeID, uid string) error {
	node, release, err := m.acquire(ctx, nodeID, uid)
	if err != nil {
		return err
	}
	defer release()

	return m.reserve(ctx, node, uid)
}

func (m *NodeStateMachine) reserve(ctx context.Context, node domain.Node, uid string) error {
	log := slogx.FromContext(ctx).With(slog.String("node_id", node.ID), slog.String("uid", uid))

	// 1. Check the user may hold a reservation at all.
	user, err := m.Store.Users().GetUser(ctx, uid)
	if err != nil {
		return mapUserErr(err)
	}
	if user.Locked() {
		return ErrAccountLocked
	}
	if !user.BadgeValidAt(m.now()) {
		return ErrBadgeExpired
	}

	// 2. Asking again for your own reservation changes nothing.
	if node.Status == domain.NodeReserved && node.UsedBy == uid {
		return m.touch(ctx, node.ID)
	}

	if !m.Ledger.CanReserveUser(user) {
		if user.IsParked {
			return ErrAlreadyParked
		}
		return ErrReservationLimit
	}

	// 3. The node must be free.
	switch node.Status {
	case domain.NodeFree:
	case domain.NodeReserved, domain.NodeOccupied:
		return ErrSpotTaken
	default:
		return ErrInvalidTransition
	}

	// 4. Claim the user's slot, then the node. Undo the slot if the node
	// was taken in between.
	if err := m.Ledger.Reserve(ctx, uid); err != nil {
		return err
	}

	err = m.Store.Nodes().UpdateNodeIf(ctx, node.ID,
		store.NodeCondition{Status: []domain.NodeStatus{domain.NodeFree}},
		store.NodePatch{Status: store.Ptr(domain.NodeReserved), UsedBy: store.Ptr(uid)},
	)
	if err != nil {
		if cerr := m.Ledger.Cancel(ctx, uid); cerr != nil {
			log.Error("failed to roll back reservation slot", slog.Any("error", cerr))
		}
		if errors.Is(err, store.ErrConflict) {
			return ErrSpotTaken
		}
		return mapNodeErr(err)
	}
	m.metrics().RecordTransition(node.Status, domain.NodeReserved)

	log.Info("node reserved")
	m.Effects.Publish(ctx, node.ID, domain.CommandReserved)
	return nil
}

// CancelReservation releases uid's reservation on the node.
func (m *NodeStateMachine) CancelReservation(ctx context.Context, nodeID, uid string) error {
	node, release, err := m.acquire(ctx, nodeID, uid)
	if err != nil {
		return err
	}
	defer release()

	return m.cancelReservation(ctx, node, uid)
}

func (m *NodeStateMachine) cancelReservation(ctx context.Context, node domain.Node, uid string) error {
	if node.Status == domain.NodeFree {
		return m.touch(ctx, node.ID)
	}
	if node.Status != domain.NodeReserved || node.UsedBy != uid {
		return ErrNotReservationHolder
	}

	if err := m.transition(ctx, node, domain.NodeFree, freePatch()); err != nil {
		return err
	}
	if err := m.Ledger.Cancel(ctx, uid); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("reservation cancelled",
		slog.String("node_id", node.ID),
		slog.String("uid", uid),
	)
	m.Effects.Publish(ctx, node.ID, domain.CommandFree)
	return nil
}

// occupy parks uid on the node after a successful badge authentication. The
// node must be free or reserved by uid.
func (m *NodeStateMachine) occupy(ctx context.Context, node domain.Node, uid string) error {
	err := m.transition(ctx, node, domain.NodeOccupied, store.NodePatch{
		Status: store.Ptr(domain.NodeOccupied),
		UsedBy: store.Ptr(uid),
	})
	if err != nil {
		return err
	}

	if node.Status == domain.NodeReserved {
		if err := m.Ledger.Cancel(ctx, uid); err != nil {
			return err
		}
	}
	return m.Ledger.MarkParked(ctx, uid, true)
}

// markViolation flags a free or reserved node. A reservation on it is lost
// and its holder is told by email. No command is sent: the node stays
// flagged until it reports free again.
func (m *NodeStateMachine) markViolation(ctx context.Context, node domain.Node) error {
	if err := m.transition(ctx, node, domain.NodeViolation, store.NodePatch{
		Status: store.Ptr(domain.NodeViolation),
		UsedBy: store.Ptr(""),
	}); err != nil {
		return err
	}

	if node.Status != domain.NodeReserved {
		return nil
	}

	holder, err := m.Store.Users().GetUser(ctx, node.UsedBy)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return mapUserErr(err)
	}
	if err := m.Ledger.Cancel(ctx, holder.ID); err != nil && !errors.Is(err, ErrUserNotFound) {
		return err
	}

	slogx.FromContext(ctx).Info("reservation lost to a violation",
		slog.String("node_id", node.ID),
		slog.String("holder", holder.ID),
	)
	m.Effects.EmailUser(ctx, holder.Email, reservationLostSubject, reservationLostEmail(holder.Username, node.Position))
	return nil
}

// AdminUpdate writes fields directly, skipping the transition rules and their
// side effects. It still holds the node lock.
func (m *NodeStateMachine) AdminUpdate(ctx context.Context, nodeID string, upd NodeUpdate) error {
	log := slogx.FromContext(ctx).With(slog.String("node_id", nodeID))

	if upd.Status != nil && !upd.Status.Valid() {
		return ErrInvalidRequest
	}

	node, release, err := m.acquire(ctx, nodeID)
	if err != nil {
		return err
	}
	defer release()

	var patch store.NodePatch
	if upd.Status != nil && !upd.Status.Ignored() {
		patch.Status = upd.Status
	}
	patch.UsedBy = upd.UsedBy
	patch.Position = upd.Position
	if upd.Token != nil {
		if *upd.Token == "" {
			return ErrInvalidRequest
		}
		hash, err := cryptox.HashSecret(*upd.Token)
		if err != nil {
			return fmt.Errorf("hash node token: %w", err)
		}
		patch.SecretHash = &hash
	}

	if err := m.Store.Nodes().UpdateNode(ctx, nodeID, patch); err != nil {
		return mapNodeErr(err)
	}

	after := node
	if patch.Status != nil {
		after.Status = *patch.Status
		m.metrics().RecordTransition(node.Status, after.Status)
	}
	if patch.UsedBy != nil {
		after.UsedBy = *patch.UsedBy
	}
	if !after.Consistent() {
		log.Warn("admin update left node status and holder out of step",
			slog.String("status", string(after.Status)),
			slog.String("used_by", after.UsedBy),
		)
	}

	log.Info("node updated by admin")
	return nil
}

// Touch refreshes updated_at without changing anything else.
func (m *NodeStateMachine) Touch(ctx context.Context, nodeID string) error {
	node, release, err := m.acquire(ctx, nodeID)
	if err != nil {
		return err
	}
	defer release()

	return m.touch(ctx, node.ID)
}

func (m *NodeStateMachine) touch(ctx context.Context, nodeID string) error {
	return mapNodeErr(m.Store.Nodes().UpdateNode(ctx, nodeID, store.NodePatch{}))
}

// transition writes patch guarded on the node still looking like node.
func (m *NodeStateMachine) transition(ctx context.Context, node domain.Node, to domain.NodeStatus, patch store.NodePatch) error {
	err := m.Store.Nodes().UpdateNodeIf(ctx, node.ID,
		store.NodeCondition{Status: []domain.NodeStatus{node.Status}, UsedBy: store.Ptr(node.UsedBy)},
		patch,
	)
	if errors.Is(err, store.ErrConflict) {
		return errNodeChanged
	}
	if err != nil {
		return mapNodeErr(err)
	}

	m.metrics().RecordTransition(node.Status, to)
	return nil
}

func freePatch() store.NodePatch {
	return store.NodePatch{Status: store.Ptr(domain.NodeFree), UsedBy: store.Ptr("")}
}

func (m *NodeStateMachine) metrics() metrics.Recorder {
	if m.Metrics == nil {
		return metrics.Nop{}
	}
	return m.Metrics
}

func (m *NodeStateMachine) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
