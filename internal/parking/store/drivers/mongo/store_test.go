package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/internal/parking/store/drivers/mongo"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupMongo starts a throwaway mongod. These tests need Docker, so they only
// run with PARKING_INTEGRATION=1.
func setupMongo(t *testing.T) *mongo.Store {
	t.Helper()
	if os.Getenv("PARKING_INTEGRATION") != "1" {
		t.Skip("set PARKING_INTEGRATION=1 to run mongo integration tests")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	st, err := mongo.NewStore(ctx, fmt.Sprintf("mongodb://%s:%s", host, mappedPort.Port()), "parking_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func TestMongoNodes(t *testing.T) {
	st := setupMongo(t)
	ctx := context.Background()

	require.NoError(t, st.Nodes().CreateNode(ctx, domain.Node{ID: "n1", Position: "B2", SecretHash: "h"}))
	require.ErrorIs(t, st.Nodes().CreateNode(ctx, domain.Node{ID: "n1"}), store.ErrAlreadyExists)

	onlyIfFree := store.NodeCondition{Status: []domain.NodeStatus{domain.NodeFree}}
	reserve := store.NodePatch{Status: store.Ptr(domain.NodeReserved), UsedBy: store.Ptr("alice")}

	require.NoError(t, st.Nodes().UpdateNodeIf(ctx, "n1", onlyIfFree, reserve))
	require.ErrorIs(t, st.Nodes().UpdateNodeIf(ctx, "n1", onlyIfFree, reserve), store.ErrConflict)
	require.ErrorIs(t, st.Nodes().UpdateNodeIf(ctx, "n2", onlyIfFree, reserve), store.ErrNotFound)

	n, err := st.Nodes().GetNode(ctx, "n1")
	require.NoError(t, err)
	require.Equal(t, domain.NodeReserved, n.Status)
	require.Equal(t, "alice", n.UsedBy)
	require.Equal(t, "B2", n.Position)

	nodes, err := st.Nodes().ListNodes(ctx, store.NodeFilter{UsedBy: "alice"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	require.NoError(t, st.Nodes().DeleteNode(ctx, "n1"))
	require.ErrorIs(t, st.Nodes().DeleteNode(ctx, "n1"), store.ErrNotFound)
}

func TestMongoUsersLockoutFlag(t *testing.T) {
	st := setupMongo(t)
	ctx := context.Background()

	require.NoError(t, st.Users().CreateUser(ctx, domain.User{
		ID:              "uid",
		Username:        "alice",
		BadgeExpiration: time.Now().Add(time.Hour),
		AuthSecret:      "s0",
		Account:         domain.AccountActive,
	}))

	active := store.Ptr(domain.AccountActive)
	require.NoError(t, st.Users().UpdateUserIf(ctx, "uid",
		store.UserCondition{Account: active},
		store.UserPatch{Account: store.Ptr(domain.AccountLocked)},
	))
	require.ErrorIs(t, st.Users().UpdateUserIf(ctx, "uid",
		store.UserCondition{Account: active},
		store.UserPatch{AuthSecret: store.Ptr("s1")},
	), store.ErrConflict)

	locked, err := st.Users().ListUsers(ctx, store.UserFilter{Locked: store.Ptr(true)})
	require.NoError(t, err)
	require.Len(t, locked, 1)
	require.True(t, locked[0].Locked())
	require.Equal(t, "s0", locked[0].AuthSecret)
}
