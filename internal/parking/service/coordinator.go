package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/metrics"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/cryptox"
	"github.com/aussiebroadwan/parking/pkg/slogx"
)

// NodeAuthRequest is what a node sends after reading a badge.
type NodeAuthRequest struct {
	Token    string     `json:"token"`
	UserData *BadgeRead `json:"user_data"`
}

// BadgeRead carries the badge UID, the secret read from it and the new
// secret the node wrote back.
type BadgeRead struct {
	UID          string `json:"UID"`
	AuthBytes    string `json:"AUTH_BYTES"`
	NewAuthBytes string `json:"NEW_AUTH_BYTES"`
}

type Source string

const (
	SourceNode Source = "node"
	SourceUI   Source = "ui"
)

// StatusUpdate is a PATCH on a node, from the node itself or from the UI.
type StatusUpdate struct {
	Source Source        `json:"source"`
	Token  string        `json:"token,omitempty"`
	Data   *UpdateFields `json:"data_to_update"`
}

type UpdateFields struct {
	Status  *domain.NodeStatus `json:"status,omitempty"`
	UsedBy  *string            `json:"used_by,omitempty"`
	Profile *ProfileFields     `json:"profile,omitempty"`
}

type ProfileFields struct {
	Position *string `json:"position,omitempty"`
	Token    *string `json:"token,omitempty"`
}

// Caller is an authenticated UI caller.
type Caller struct {
	UID     string
	IsAdmin bool
}

// AccessCoordinator composes the badge check, the ledger and the state
// machine into the two requests nodes and users actually make.
type AccessCoordinator struct {
	Store   store.Store
	Badges  *BadgeAuthenticator
	Nodes   *NodeStateMachine
	Effects *Effects
	Metrics metrics.Recorder
	Now     func() time.Time
}

// AuthenticateAtNode handles a badge presented at a node.
func (c *AccessCoordinator) AuthenticateAtNode(ctx context.Context, nodeID string, req NodeAuthRequest) (err error) {
	defer func() { c.metrics().RecordUseCase("authenticate_at_node", string(ResultOf(err))) }()

	ctx, log := slogx.With(ctx, slog.String("node_id", nodeID))

	// 1. The node must exist and prove itself.
	if err := c.verifyNode(ctx, nodeID, req.Token); err != nil {
		return err
	}

	// 2. Validate payload shape.
	badge := req.UserData
	if badge == nil || badge.UID == "" || badge.AuthBytes == "" || badge.NewAuthBytes == "" {
		return ErrInvalidRequest
	}
	ctx, log = slogx.With(ctx, slog.String("uid", badge.UID))

	// 3. Serialize against everything else touching this node or user.
	node, release, err := c.Nodes.acquire(ctx, nodeID, badge.UID)
	if err != nil {
		return err
	}
	defer release()

	user, err := c.Store.Users().GetUser(ctx, badge.UID)
	if err != nil {
		return mapUserErr(err)
	}

	// 4. Check the rotating secret.
	result, err := c.Badges.Authenticate(ctx, badge.UID, badge.AuthBytes, badge.NewAuthBytes)
	if err != nil {
		return err
	}
	switch result {
	case BadgeRejected:
		log.Info("badge rejected, account locked")
		return ErrAccountLocked
	case BadgeCloningSuspected:
		c.cloningDetected(ctx, node, user)
		return ErrViolationDetected
	}

	// 5. Badge expiry.
	if !c.Badges.IsAuthorizedUser(user) {
		return ErrBadgeExpired
	}

	// 6. Already parked elsewhere.
	if user.IsParked {
		return ErrAlreadyParked
	}

	// 7. The node must be free or held by this user.
	switch node.Status {
	case domain.NodeFree:
	case domain.NodeReserved:
		if node.UsedBy != badge.UID {
			return ErrSpotTaken
		}
	default:
		return ErrInvalidTransition
	}

	if err := c.Nodes.occupy(ctx, node, badge.UID); err != nil {
		return err
	}

	log.Info("user parked")
	return nil
}

// cloningDetected flags the node when it can be flagged and tells everybody.
// The node's current occupant, if any, is left alone.
func (c *AccessCoordinator) cloningDetected(ctx context.Context, node domain.Node, user domain.User) {
	log := slogx.FromContext(ctx)

	if node.Status == domain.NodeFree || node.Status == domain.NodeReserved {
		if err := c.Nodes.markViolation(ctx, node); err != nil {
			log.Error("failed to flag node after cloning", slog.Any("error", err))
		}
	}

	at := c.now()
	log.Warn("badge cloning detected")
	c.Effects.AlertOperator(ctx, cloningAlert(at, node.ID, user.ID))
	c.Effects.EmailUser(ctx, user.Email, suspendedSubject, suspendedEmail(user.Username, at))
}

// UpdateStatus handles a PATCH from a node or the UI. caller is nil for
// requests without a bearer identity.
func (c *AccessCoordinator) UpdateStatus(ctx context.Context, nodeID string, caller *Caller, upd StatusUpdate) (err error) {
	defer func() { c.metrics().RecordUseCase("update_status", string(ResultOf(err))) }()

	// 1. Node exists.
	if _, err := c.Store.Nodes().GetNode(ctx, nodeID); err != nil {
		return mapNodeErr(err)
	}

	// 2. Payload shape.
	switch upd.Source {
	case SourceNode:
		if upd.Token == "" {
			return ErrInvalidRequest
		}
	case SourceUI:
	default:
		return ErrInvalidRequest
	}
	if upd.Data == nil {
		return ErrInvalidRequest
	}
	if upd.Data.Status != nil && !upd.Data.Status.Valid() {
		return ErrInvalidRequest
	}

	// 3. Who is asking.
	if upd.Source == SourceNode {
		if err := c.verifyNode(ctx, nodeID, upd.Token); err != nil {
			return err
		}
	} else if caller == nil || caller.UID == "" {
		return ErrUnauthenticated
	}
	admin := upd.Source == SourceUI && caller.IsAdmin

	// 4. Only admins write fields directly.
	if !admin && (upd.Data.Profile != nil || upd.Data.UsedBy != nil) {
		return ErrPermissionDenied
	}

	// 5. Dispatch.
	switch {
	case admin:
		nu := NodeUpdate{Status: upd.Data.Status, UsedBy: upd.Data.UsedBy}
		if p := upd.Data.Profile; p != nil {
			nu.Position = p.Position
			nu.Token = p.Token
		}
		return c.Nodes.AdminUpdate(ctx, nodeID, nu)

	case upd.Source == SourceUI:
		if upd.Data.Status == nil {
			return c.Nodes.Touch(ctx, nodeID)
		}
		switch *upd.Data.Status {
		case domain.NodeReserved:
			return c.Nodes.Reserve(ctx, nodeID, caller.UID)
		case domain.NodeFree:
			return c.Nodes.CancelReservation(ctx, nodeID, caller.UID)
		}
		return ErrPermissionDenied

	default:
		if upd.Data.Status == nil {
			return c.Nodes.Touch(ctx, nodeID)
		}
		return c.Nodes.NewStatusFromNode(ctx, nodeID, *upd.Data.Status)
	}
}

// verifyNode loads the node and checks the presented token against its hash.
func (c *AccessCoordinator) verifyNode(ctx context.Context, nodeID, token string) error {
	node, err := c.Store.Nodes().GetNode(ctx, nodeID)
	if err != nil {
		return mapNodeErr(err)
	}
	if token == "" {
		return ErrNodeAuthFailed
	}

	if err := cryptox.VerifySecret(token, node.SecretHash); err != nil {
		if !errors.Is(err, cryptox.ErrSecretMismatch) {
			slogx.FromContext(ctx).Error("stored node token unreadable",
				slog.String("node_id", nodeID),
				slog.Any("error", err),
			)
		}
		return ErrNodeAuthFailed
	}
	return nil
}

func (c *AccessCoordinator) metrics() metrics.Recorder {
	if c.Metrics == nil {
		return metrics.Nop{}
	}
	return c.Metrics
}

func (c *AccessCoordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

