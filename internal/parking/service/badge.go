package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/metrics"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/slogx"
)

type BadgeResult int

const (
	BadgeAccepted BadgeResult = iota
	BadgeRejected
	BadgeCloningSuspected
)

func (r BadgeResult) String() string {
	switch r {
	case BadgeAccepted:
		return "accepted"
	case BadgeRejected:
		return "rejected"
	case BadgeCloningSuspected:
		return "cloning_suspected"
	}
	return "unknown"
}

// maxCASAttempts bounds how often a guarded update is retried after losing a
// race before giving up.
const maxCASAttempts = 5

var errTooManyConflicts = errors.New("too many concurrent updates")

// BadgeAuthenticator checks the rotating badge secret. A presented secret
// that does not match the stored one means the badge was copied after its
// last rotation, and the account is locked until an admin resets it.
//
// Callers are expected to hold the user lock. The guarded updates keep the
// check-and-write atomic even without it.
type BadgeAuthenticator struct {
	Store   store.Store
	Metrics metrics.Recorder
	Now     func() time.Time
}

func (b *BadgeAuthenticator) Authenticate(ctx context.Context, uid, presented, rewritten string) (BadgeResult, error) {
	log := slogx.FromContext(ctx).With(slog.String("uid", uid))

	for range maxCASAttempts {
		user, err := b.Store.Users().GetUser(ctx, uid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return BadgeRejected, ErrUserNotFound
			}
			return BadgeRejected, fmt.Errorf("get user: %w", err)
		}

		// 1. Locked accounts are rejected without comparing anything.
		if user.Locked() {
			b.record(BadgeRejected)
			return BadgeRejected, nil
		}

		active := store.Ptr(domain.AccountActive)

		// 2. Matching secret: rotate to the value the node just wrote.
		if subtle.ConstantTimeCompare([]byte(presented), []byte(user.AuthSecret)) == 1 {
			err = b.Store.Users().UpdateUserIf(ctx, uid,
				store.UserCondition{AuthSecret: store.Ptr(presented), Account: active},
				store.UserPatch{AuthSecret: store.Ptr(rewritten)},
			)
			switch {
			case err == nil:
				b.record(BadgeAccepted)
				return BadgeAccepted, nil
			case errors.Is(err, store.ErrConflict):
				log.Debug("badge secret changed underneath, retrying")
				continue
			case errors.Is(err, store.ErrNotFound):
				return BadgeRejected, ErrUserNotFound
			default:
				return BadgeRejected, fmt.Errorf("rotate badge secret: %w", err)
			}
		}

		// 3. Stale secret: lock the account. Guarded on the secret we compared
		// against so a concurrent rotation forces a fresh evaluation.
		err = b.Store.Users().UpdateUserIf(ctx, uid,
			store.UserCondition{AuthSecret: store.Ptr(user.AuthSecret), Account: active},
			store.UserPatch{Account: store.Ptr(domain.AccountLocked)},
		)
		switch {
		case err == nil:
			log.Warn("badge cloning suspected, account locked")
			b.record(BadgeCloningSuspected)
			return BadgeCloningSuspected, nil
		case errors.Is(err, store.ErrConflict):
			continue
		case errors.Is(err, store.ErrNotFound):
			return BadgeRejected, ErrUserNotFound
		default:
			return BadgeRejected, fmt.Errorf("lock account: %w", err)
		}
	}

	log.Error("badge authentication kept losing races", slog.Int("attempts", maxCASAttempts))
	return BadgeRejected, errTooManyConflicts
}

// IsAuthorized reports whether the user's badge has not expired.
func (b *BadgeAuthenticator) IsAuthorized(ctx context.Context, uid string) (bool, error) {
	user, err := b.Store.Users().GetUser(ctx, uid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, fmt.Errorf("get user: %w", err)
	}
	return b.IsAuthorizedUser(user), nil
}

// IsAuthorizedUser is IsAuthorized for a user already loaded by the caller.
// The expiration instant itself is still valid.
func (b *BadgeAuthenticator) IsAuthorizedUser(user domain.User) bool {
	return user.BadgeValidAt(b.now())
}

func (b *BadgeAuthenticator) record(r BadgeResult) {
	if b.Metrics != nil {
		b.Metrics.RecordBadgeResult(r.String())
	}
}

func (b *BadgeAuthenticator) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
