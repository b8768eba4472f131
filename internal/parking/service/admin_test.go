package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestAdminCreateNode(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	token, err := env.admin.CreateNode(ctx, "X", "A1", "")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	n := env.getNode(t, "X")
	require.NotEqual(t, token, n.SecretHash)
	require.NoError(t, cryptox.VerifySecret(token, n.SecretHash))

	given, err := env.admin.CreateNode(ctx, "Y", "A2", "chosen")
	require.NoError(t, err)
	require.Equal(t, "chosen", given)

	_, err = env.admin.CreateNode(ctx, "X", "", "")
	require.ErrorIs(t, err, ErrAlreadyExists)

	_, err = env.admin.CreateNode(ctx, "", "", "")
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAdminCreateUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.user(t, "U", "s0")
	require.Equal(t, domain.AccountActive, env.getUser(t, "U").Account)

	err := env.admin.CreateUser(ctx, NewUser{ID: "U", Username: "dup", BadgeExpiration: time.Now()})
	require.ErrorIs(t, err, ErrAlreadyExists)

	err = env.admin.CreateUser(ctx, NewUser{ID: "W"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAdminDeleteNodeReleasesHolder(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.node(t, "X")
	tokenY := env.node(t, "Y")
	env.user(t, "U", "s0")
	env.user(t, "V", "v0")

	require.NoError(t, env.machine.Reserve(ctx, "X", "U"))
	require.NoError(t, env.coord.AuthenticateAtNode(ctx, "Y", NodeAuthRequest{Token: tokenY, UserData: badge("V", "v0", "v1")}))

	require.NoError(t, env.admin.DeleteNode(ctx, "X"))
	require.NoError(t, env.admin.DeleteNode(ctx, "Y"))
	require.ErrorIs(t, env.admin.DeleteNode(ctx, "X"), ErrNodeNotFound)

	require.Zero(t, env.getUser(t, "U").NbReservations)
	require.False(t, env.getUser(t, "V").IsParked)
}

func TestAdminDeleteUserFreesNodes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.node(t, "X")
	env.user(t, "U", "s0")
	require.NoError(t, env.machine.Reserve(ctx, "X", "U"))

	require.NoError(t, env.admin.DeleteUser(ctx, "U"))

	n := env.getNode(t, "X")
	require.Equal(t, domain.NodeFree, n.Status)
	require.Empty(t, n.UsedBy)

	_, err := env.admin.GetUser(ctx, "U")
	require.ErrorIs(t, err, ErrUserNotFound)
	require.ErrorIs(t, env.admin.DeleteUser(ctx, "U"), ErrUserNotFound)

	env.requireInvariants(t)
}

// listHook runs onList once, on the first held-node lookup for a user.
type listHook struct {
	store.Store
	onList func()
	done   bool
}

func (h *listHook) Nodes() store.Nodes { return hookedNodes{Nodes: h.Store.Nodes(), hook: h} }

type hookedNodes struct {
	store.Nodes
	hook *listHook
}

func (n hookedNodes) ListNodes(ctx context.Context, filter store.NodeFilter) ([]domain.Node, error) {
	nodes, err := n.Nodes.ListNodes(ctx, filter)
	if filter.UsedBy != "" && !n.hook.done {
		n.hook.done = true
		n.hook.onList()
	}
	return nodes, err
}

func TestAdminDeleteUserFreesNodeClaimedDuringDelete(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.node(t, "X")
	env.node(t, "Y")
	env.user(t, "U", "s0")
	require.NoError(t, env.machine.Reserve(ctx, "X", "U"))

	hooked := &listHook{Store: env.store}
	hooked.onList = func() {
		// X is released and Y reserved between the lookup and the delete.
		require.NoError(t, env.machine.CancelReservation(ctx, "X", "U"))
		require.NoError(t, env.machine.Reserve(ctx, "Y", "U"))
	}
	admin := &AdminService{Store: hooked, Nodes: env.machine, Ledger: env.ledger, Locks: env.machine.Locks}

	require.NoError(t, admin.DeleteUser(ctx, "U"))

	for _, id := range []string{"X", "Y"} {
		n := env.getNode(t, id)
		require.Equal(t, domain.NodeFree, n.Status, id)
		require.Empty(t, n.UsedBy, id)
	}
	_, err := env.admin.GetUser(ctx, "U")
	require.ErrorIs(t, err, ErrUserNotFound)

	env.requireInvariants(t)
}

func TestAdminUnlockUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	token := env.node(t, "X")
	env.user(t, "U", "s0")

	require.ErrorIs(t, env.admin.UnlockUser(ctx, "U", "fresh"), ErrInvalidTransition)

	_, err := env.badges.Authenticate(ctx, "U", "cloned", "x")
	require.NoError(t, err)
	require.True(t, env.getUser(t, "U").Locked())

	require.ErrorIs(t, env.admin.UnlockUser(ctx, "U", ""), ErrInvalidRequest)
	require.NoError(t, env.admin.UnlockUser(ctx, "U", "fresh"))

	u := env.getUser(t, "U")
	require.False(t, u.Locked())
	require.Equal(t, "fresh", u.AuthSecret)

	// The node was flagged by nothing here, so the new badge parks normally.
	require.NoError(t, env.coord.AuthenticateAtNode(ctx, "X", NodeAuthRequest{Token: token, UserData: badge("U", "fresh", "next")}))

	require.ErrorIs(t, env.admin.UnlockUser(ctx, "ghost", "fresh"), ErrUserNotFound)
}

func TestAdminListAndUpdateUsers(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	env.user(t, "U", "s0")
	env.user(t, "V", "v0")

	require.NoError(t, env.admin.UpdateUser(ctx, "V", UserUpdate{IsAdmin: store.Ptr(true), Email: store.Ptr("v@corp")}))
	require.ErrorIs(t, env.admin.UpdateUser(ctx, "ghost", UserUpdate{}), ErrUserNotFound)

	admins, err := env.admin.ListUsers(ctx, store.UserFilter{IsAdmin: store.Ptr(true)})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	require.Equal(t, "v@corp", admins[0].Email)

	all, err := env.admin.ListUsers(ctx, store.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}
