package service

import "errors"

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrUserNotFound = errors.New("user not found")

	ErrNodeAuthFailed    = errors.New("node authentication failed")
	ErrUnauthenticated   = errors.New("caller not authenticated")
	ErrAccountLocked     = errors.New("account locked after suspicious activity")
	ErrBadgeExpired      = errors.New("badge expired")
	ErrViolationDetected = errors.New("badge cloning suspected")

	ErrSpotTaken         = errors.New("parking spot taken by another user")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRequest    = errors.New("invalid request")

	ErrAlreadyParked        = errors.New("user already parked")
	ErrReservationLimit     = errors.New("user cannot take another reservation")
	ErrNotReservationHolder = errors.New("no reservation held on this node")
	ErrAlreadyExists        = errors.New("already exists")
)
