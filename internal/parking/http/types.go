package http

import (
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/pkg/parkingsdk"
)

// nodeView hides the holder and timestamps from non-admins. uid is the
// caller, used for the used_by_me flag.
func nodeView(n domain.Node, uid string, admin bool) parkingsdk.NodeView {
	v := parkingsdk.NodeView{
		ID:       n.ID,
		Position: n.Position,
		Status:   string(n.Status),
		UsedByMe: uid != "" && n.UsedBy == uid,
	}
	if admin {
		v.UsedBy = n.UsedBy
		v.CreatedAt = n.CreatedAt.Format(time.RFC3339)
		v.UpdatedAt = n.UpdatedAt.Format(time.RFC3339)
	}
	return v
}

// userView never carries the badge secret.
func userView(u domain.User) parkingsdk.UserView {
	return parkingsdk.UserView{
		ID:                u.ID,
		Username:          u.Username,
		Email:             u.Email,
		IsAdmin:           u.IsAdmin,
		BadgeExpiration:   u.BadgeExpiration.Format(time.RFC3339),
		ViolationDetected: u.Locked(),
		IsParked:          u.IsParked,
		NbReservations:    u.NbReservations,
		CreatedAt:         u.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         u.UpdatedAt.Format(time.RFC3339),
	}
}
