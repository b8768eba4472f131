package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/slogx"
)

// ReservationLedger tracks whether a user may take a reservation. A user
// holds at most one reservation and none while parked.
type ReservationLedger struct {
	Store store.Store
}

func (l *ReservationLedger) CanReserve(ctx context.Context, uid string) (bool, error) {
	user, err := l.Store.Users().GetUser(ctx, uid)
	if err != nil {
		return false, mapUserErr(err)
	}
	return l.CanReserveUser(user), nil
}

// CanReserveUser is CanReserve for a user already loaded under its lock.
func (l *ReservationLedger) CanReserveUser(user domain.User) bool {
	return user.CanReserve()
}

// Reserve claims the user's single reservation slot.
func (l *ReservationLedger) Reserve(ctx context.Context, uid string) error {
	err := l.Store.Users().UpdateUserIf(ctx, uid,
		store.UserCondition{NbReservations: store.Ptr(0), IsParked: store.Ptr(false)},
		store.UserPatch{NbReservations: store.Ptr(1)},
	)
	if errors.Is(err, store.ErrConflict) {
		return ErrReservationLimit
	}
	return mapUserErr(err)
}

// Cancel releases the reservation slot. Cancelling with no reservation held
// is logged and otherwise ignored.
func (l *ReservationLedger) Cancel(ctx context.Context, uid string) error {
	err := l.Store.Users().UpdateUserIf(ctx, uid,
		store.UserCondition{NbReservations: store.Ptr(1)},
		store.UserPatch{NbReservations: store.Ptr(0)},
	)
	if errors.Is(err, store.ErrConflict) {
		slogx.FromContext(ctx).Warn("cancel without a reservation held", slog.String("uid", uid))
		return nil
	}
	return mapUserErr(err)
}

func (l *ReservationLedger) MarkParked(ctx context.Context, uid string, parked bool) error {
	err := l.Store.Users().UpdateUser(ctx, uid, store.UserPatch{IsParked: store.Ptr(parked)})
	return mapUserErr(err)
}

func mapUserErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrUserNotFound
	default:
		return fmt.Errorf("user store: %w", err)
	}
}

func mapNodeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNodeNotFound
	default:
		return fmt.Errorf("node store: %w", err)
	}
}
