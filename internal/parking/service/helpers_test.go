package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/parking/internal/parking/domain"
	"github.com/aussiebroadwan/parking/internal/parking/lock"
	"github.com/aussiebroadwan/parking/internal/parking/metrics"
	"github.com/aussiebroadwan/parking/internal/parking/store"
	"github.com/aussiebroadwan/parking/internal/parking/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []string
	emails []sentEmail
}

type sentEmail struct {
	To, Subject, Body string
}

func (n *recordingNotifier) AlertOperator(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, text)
	return nil
}

func (n *recordingNotifier) EmailUser(_ context.Context, address, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, sentEmail{To: address, Subject: subject, Body: body})
	return nil
}

func (n *recordingNotifier) Alerts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.alerts...)
}

func (n *recordingNotifier) Emails() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.emails...)
}

type published struct {
	NodeID  string
	Command domain.NodeCommand
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *recordingPublisher) Publish(_ context.Context, nodeID string, cmd domain.NodeCommand) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{NodeID: nodeID, Command: cmd})
	return nil
}

func (p *recordingPublisher) Sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.sent...)
}

type testEnv struct {
	store     *sqlite.Store
	notifier  *recordingNotifier
	publisher *recordingPublisher
	effects   *Effects
	badges    *BadgeAuthenticator
	ledger    *ReservationLedger
	machine   *NodeStateMachine
	coord     *AccessCoordinator
	admin     *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		store:     st,
		notifier:  &recordingNotifier{},
		publisher: &recordingPublisher{},
	}

	locks := lock.NewKeyedMutex()
	rec := metrics.Nop{}

	env.effects = &Effects{Notifier: env.notifier, Commands: env.publisher, Metrics: rec, Timeout: time.Second}
	env.ledger = &ReservationLedger{Store: st}
	env.badges = &BadgeAuthenticator{Store: st, Metrics: rec}
	env.machine = &NodeStateMachine{
		Store:   st,
		Ledger:  env.ledger,
		Effects: env.effects,
		Locks:   locks,
		Metrics: rec,
	}
	env.coord = &AccessCoordinator{
		Store:   st,
		Badges:  env.badges,
		Nodes:   env.machine,
		Effects: env.effects,
		Metrics: rec,
	}
	env.admin = &AdminService{Store: st, Nodes: env.machine, Ledger: env.ledger, Locks: locks}

	t.Cleanup(env.effects.Wait)
	return env
}

// node registers a free node and returns its token.
func (e *testEnv) node(t *testing.T, id string) string {
	t.Helper()
	token, err := e.admin.CreateNode(context.Background(), id, "spot "+id, "")
	require.NoError(t, err)
	return token
}

func (e *testEnv) user(t *testing.T, uid, secret string) {
	t.Helper()
	require.NoError(t, e.admin.CreateUser(context.Background(), NewUser{
		ID:              uid,
		Username:        "user-" + uid,
		Email:           uid + "@example.com",
		BadgeExpiration: time.Now().Add(24 * time.Hour),
		AuthSecret:      secret,
	}))
}

func (e *testEnv) getNode(t *testing.T, id string) domain.Node {
	t.Helper()
	n, err := e.store.Nodes().GetNode(context.Background(), id)
	require.NoError(t, err)
	return n
}

func (e *testEnv) getUser(t *testing.T, uid string) domain.User {
	t.Helper()
	u, err := e.store.Users().GetUser(context.Background(), uid)
	require.NoError(t, err)
	return u
}

// requireInvariants checks every node's holder agrees with its status and
// every reservation count is 0 or 1.
func (e *testEnv) requireInvariants(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	nodes, err := e.store.Nodes().ListNodes(ctx, store.NodeFilter{})
	require.NoError(t, err)
	for _, n := range nodes {
		require.Truef(t, n.Consistent(), "node %s: status %s used_by %q", n.ID, n.Status, n.UsedBy)
	}

	users, err := e.store.Users().ListUsers(ctx, store.UserFilter{})
	require.NoError(t, err)
	for _, u := range users {
		require.Containsf(t, []int{0, 1}, u.NbReservations, "user %s", u.ID)
	}
}

func badge(uid, presented, rewritten string) *BadgeRead {
	return &BadgeRead{UID: uid, AuthBytes: presented, NewAuthBytes: rewritten}
}

func statusPtr(s domain.NodeStatus) *domain.NodeStatus { return &s }
