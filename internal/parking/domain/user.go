package domain

import "time"

// AccountState replaces a loose violation flag. Locked is entered only by the
// badge authenticator and left only through an administrative unlock.
type AccountState string

const (
	AccountActive AccountState = "active"
	AccountLocked AccountState = "locked"
)

type User struct {
	ID              string // badge UID
	Username        string
	Email           string
	IsAdmin         bool
	BadgeExpiration time.Time
	AuthSecret      string // rotating secret last written to the badge
	Account         AccountState
	IsParked        bool
	NbReservations  int
	PwdResetToken   string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (u User) Locked() bool { return u.Account == AccountLocked }

// BadgeValidAt reports whether the badge has not expired at t.
func (u User) BadgeValidAt(t time.Time) bool {
	return !t.After(u.BadgeExpiration)
}

// CanReserve reports whether the user holds no reservation and is not parked.
func (u User) CanReserve() bool {
	return u.NbReservations == 0 && !u.IsParked
}
