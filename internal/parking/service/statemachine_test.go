package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/stretchr/testify/require"
)

func TestNewStatusFromNode_FreeIsIdempotent(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.node(t, "X")
	before := env.getNode(t, "X")

	time.Sleep(2 * time.Millisecond)
	require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeFree))
	require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeFree))

	after := env.getNode(t, "X")
	require.Equal(t, domain.NodeFree, after.Status)
	require.Empty(t, after.UsedBy)
	require.True(t, after.UpdatedAt.After(before.UpdatedAt))
	require.Equal(t, before.CreatedAt, after.CreatedAt)

	env.effects.Wait()
	require.Empty(t, env.publisher.Sent())
	require.Empty(t, env.notifier.Alerts())
}

func TestNewStatusFromNode_Transitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("car leaves", func(t *testing.T) {
		env := newTestEnv(t)
		token := env.node(t, "X")
		env.user(t, "U", "s0")
		require.NoError(t, env.coord.AuthenticateAtNode(ctx, "X", NodeAuthRequest{Token: token, UserData: badge("U", "s0", "s1")}))

		require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeFree))

		n := env.getNode(t, "X")
		require.Equal(t, domain.NodeFree, n.Status)
		require.Empty(t, n.UsedBy)
		require.False(t, env.getUser(t, "U").IsParked)
		env.requireInvariants(t)
	})

	t.Run("illegal parking on a free node", func(t *testing.T) {
		env := newTestEnv(t)
		env.node(t, "X")

		require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeViolation))
		require.Equal(t, domain.NodeViolation, env.getNode(t, "X").Status)

		env.effects.Wait()
		alerts := env.notifier.Alerts()
		require.Len(t, alerts, 1)
		require.Contains(t, alerts[0], "Illegal parking detected")
		require.Contains(t, alerts[0], "spot X")
	})

	t.Run("illegal parking on a reserved node drops the reservation", func(t *testing.T) {
		env := newTestEnv(t)
		env.node(t, "X")
		env.user(t, "U", "s0")
		require.NoError(t, env.machine.Reserve(ctx, "X", "U"))

		require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeViolation))

		n := env.getNode(t, "X")
		require.Equal(t, domain.NodeViolation, n.Status)
		require.Empty(t, n.UsedBy)
		require.Zero(t, env.getUser(t, "U").NbReservations)
		env.requireInvariants(t)

		env.effects.Wait()
		emails := env.notifier.Emails()
		require.Len(t, emails, 1)
		require.Equal(t, "U@example.com", emails[0].To)
		require.Equal(t, reservationLostSubject, emails[0].Subject)
		require.Equal(t, []published{{NodeID: "X", Command: domain.CommandReserved}}, env.publisher.Sent())
	})

	t.Run("violation cleared by the node", func(t *testing.T) {
		env := newTestEnv(t)
		env.node(t, "X")
		require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeViolation))
		require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeFree))
		require.Equal(t, domain.NodeFree, env.getNode(t, "X").Status)
	})

	t.Run("rejected pairs", func(t *testing.T) {
		env := newTestEnv(t)
		env.node(t, "X")

		require.ErrorIs(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeOccupied), ErrInvalidTransition)
		require.ErrorIs(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeReserved), ErrInvalidTransition)

		require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeViolation))
		require.ErrorIs(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeOccupied), ErrInvalidTransition)
		require.ErrorIs(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeReserved), ErrInvalidTransition)
	})

	t.Run("unknown node and status", func(t *testing.T) {
		env := newTestEnv(t)
		require.ErrorIs(t, env.machine.NewStatusFromNode(ctx, "nope", domain.NodeFree), ErrNodeNotFound)
		require.ErrorIs(t, env.machine.NewStatusFromNode(ctx, "nope", "parked"), ErrInvalidRequest)
	})
}

func TestReserve_Refusals(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.node(t, "X")
	env.node(t, "Y")
	env.user(t, "U", "s0")
	env.user(t, "V", "v0")

	require.NoError(t, env.machine.Reserve(ctx, "X", "U"))

	t.Run("same user again is a no-op", func(t *testing.T) {
		require.NoError(t, env.machine.Reserve(ctx, "X", "U"))
		require.Equal(t, 1, env.getUser(t, "U").NbReservations)
	})

	t.Run("second reservation refused", func(t *testing.T) {
		err := env.machine.Reserve(ctx, "Y", "U")
		require.ErrorIs(t, err, ErrReservationLimit)
		require.Equal(t, domain.NodeFree, env.getNode(t, "Y").Status)
	})

	t.Run("taken spot", func(t *testing.T) {
		err := env.machine.Reserve(ctx, "X", "V")
		require.ErrorIs(t, err, ErrSpotTaken)
		require.Zero(t, env.getUser(t, "V").NbReservations)
	})

	t.Run("locked account", func(t *testing.T) {
		require.NoError(t, env.store.Users().UpdateUser(ctx, "V", store.UserPatch{Account: store.Ptr(domain.AccountLocked)}))
		require.ErrorIs(t, env.machine.Reserve(ctx, "Y", "V"), ErrAccountLocked)
	})

	t.Run("unknown user", func(t *testing.T) {
		require.ErrorIs(t, env.machine.Reserve(ctx, "Y", "ghost"), ErrUserNotFound)
	})

	env.requireInvariants(t)
}

func TestAdminUpdate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.node(t, "X")

	t.Run("violation to reserved escape hatch", func(t *testing.T) {
		require.NoError(t, env.machine.NewStatusFromNode(ctx, "X", domain.NodeViolation))
		require.NoError(t, env.machine.AdminUpdate(ctx, "X", NodeUpdate{
			Status: statusPtr(domain.NodeReserved),
			UsedBy: store.Ptr("U"),
		}))

		n := env.getNode(t, "X")
		require.Equal(t, domain.NodeReserved, n.Status)
		require.Equal(t, "U", n.UsedBy)

		env.effects.Wait()
		require.Empty(t, env.publisher.Sent())
	})

	t.Run("token rotation", func(t *testing.T) {
		require.NoError(t, env.machine.AdminUpdate(ctx, "X", NodeUpdate{Token: store.Ptr("fresh-token")}))
		require.NoError(t, env.coord.verifyNode(ctx, "X", "fresh-token"))
		require.ErrorIs(t, env.coord.verifyNode(ctx, "X", "old"), ErrNodeAuthFailed)
	})

	t.Run("ignored statuses are not stored", func(t *testing.T) {
		require.NoError(t, env.machine.AdminUpdate(ctx, "X", NodeUpdate{Status: statusPtr(domain.NodeUnauthorized)}))
		require.Equal(t, domain.NodeReserved, env.getNode(t, "X").Status)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		require.ErrorIs(t, env.machine.AdminUpdate(ctx, "X", NodeUpdate{Status: statusPtr("nope")}), ErrInvalidRequest)
		require.ErrorIs(t, env.machine.AdminUpdate(ctx, "X", NodeUpdate{Token: store.Ptr("")}), ErrInvalidRequest)
		require.ErrorIs(t, env.machine.AdminUpdate(ctx, "nope", NodeUpdate{}), ErrNodeNotFound)
	})
}
