package invite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
)

type fakeStore struct {
	mu      sync.Mutex
	invites map[string]Invite
	players map[string]player.Player
}

func newFakeStore(ids ...string) *fakeStore {
	f := &fakeStore{invites: make(map[string]Invite), players: make(map[string]player.Player)}
	for _, id := range ids {
		f.players[id] = player.New(id, id+"-name")
	}
	return f
}

func (f *fakeStore) CreateInvite(_ context.Context, inv Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites[inv.ID] = inv
	return nil
}

func (f *fakeStore) GetInvite(_ context.Context, id string) (Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[id]
	if !ok {
		return Invite{}, ErrInviteNotFound
	}
	return inv, nil
}

func (f *fakeStore) TransitionInvite(_ context.Context, id string, from, to Status) (Invite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	inv, ok := f.invites[id]
	if !ok {
		return Invite{}, ErrInviteNotFound
	}
	if inv.Status != from {
		return Invite{}, ErrInviteNotPending
	}
	inv.Status = to
	f.invites[id] = inv
	return inv, nil
}

func (f *fakeStore) GetPlayer(_ context.Context, id string) (player.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.players[id]
	if !ok {
		return player.Player{}, player.ErrNotFound
	}
	return p, nil
}

type fakePresence map[string]bool

func (f fakePresence) IsOnline(id string) bool { return f[id] }

type fakeSessions struct {
	mu      sync.Mutex
	busy    map[string]bool
	started []match.Session
}

func (f *fakeSessions) Busy(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy[id]
}

func (f *fakeSessions) Start(_ context.Context, p1, p2 string) (match.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range []string{p1, p2} {
		if f.busy[id] {
			return match.Session{}, &match.BusyError{PlayerID: id}
		}
	}
	f.busy[p1], f.busy[p2] = true, true
	s := match.Session{ID: "game-1", Player1ID: p1, Player2ID: p2, CurrentTurn: p1, Status: match.StatusInProgress}
	f.started = append(f.started, s)
	return s, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	received []Invite
	rejected []Invite
	started  []match.Session
}

func (r *recordingNotifier) InviteReceived(inv Invite, _ player.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received = append(r.received, inv)
}

func (r *recordingNotifier) InviteRejected(inv Invite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected = append(r.rejected, inv)
}

func (r *recordingNotifier) GameStarted(s match.Session, _, _ player.Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, s)
}

type fixture struct {
	svc      *Service
	store    *fakeStore
	online   fakePresence
	sessions *fakeSessions
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    newFakeStore("alice", "bob", "carol"),
		online:   fakePresence{"alice": true, "bob": true, "carol": true},
		sessions: &fakeSessions{busy: make(map[string]bool)},
		notifier: &recordingNotifier{},
	}
	f.svc = NewService(f.store, f.online, f.sessions, f.notifier, clockwork.NewFakeClock(), zaptest.NewLogger(t))
	return f
}

func TestSend_CreatesPendingInvite(t *testing.T) {
	f := newFixture(t)
	inv, err := f.svc.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)

	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, StatusPending, inv.Status)
	stored, err := f.store.GetInvite(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv, stored)
	require.Len(t, f.notifier.received, 1)
	assert.Equal(t, "bob", f.notifier.received[0].ReceiverID)
}

func TestSend_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		prepare  func(f *fixture)
		sender   string
		receiver string
		want     error
	}{
		{name: "self", sender: "alice", receiver: "alice", want: ErrSelfInvite},
		{name: "offline", sender: "alice", receiver: "dave", want: ErrReceiverOffline},
		{
			name:     "receiver busy",
			prepare:  func(f *fixture) { f.sessions.busy["bob"] = true },
			sender:   "alice",
			receiver: "bob",
			want:     ErrReceiverBusy,
		},
		{
			name:     "sender busy",
			prepare:  func(f *fixture) { f.sessions.busy["alice"] = true },
			sender:   "alice",
			receiver: "bob",
			want:     ErrSenderBusy,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.prepare != nil {
				tc.prepare(f)
			}
			_, err := f.svc.Send(context.Background(), tc.sender, tc.receiver)
			require.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.store.invites, "no invite record is left behind")
			assert.Empty(t, f.notifier.received)
		})
	}
}

func TestSend_MultiplePendingAllowed(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Send(context.Background(), "alice", "bob")
	require.NoError(t, err)
	assert.Len(t, f.store.invites, 2)
}

func TestAccept_StartsSessionWithSenderFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	sess, err := f.svc.Accept(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.Player1ID)
	assert.Equal(t, "bob", sess.Player2ID)

	stored, err := f.store.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, stored.Status)
	require.Len(t, f.notifier.started, 1)

	_, err = f.svc.Accept(ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, ErrInviteNotPending)
}

func TestAccept_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Accept(ctx, "missing", "bob")
	assert.ErrorIs(t, err, ErrInviteNotFound)

	inv, err := f.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, inv.ID, "carol")
	assert.ErrorIs(t, err, ErrNotInvitee)
	_, err = f.svc.Accept(ctx, inv.ID, "alice")
	assert.ErrorIs(t, err, ErrNotInvitee)
}

func TestAccept_BusyParticipantLeavesInvitePending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	f.sessions.busy["alice"] = true

	_, err = f.svc.Accept(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, match.ErrPlayerBusy)

	stored, err := f.store.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Empty(t, f.notifier.started)
}

func TestAccept_PlayerLookupFailureStartsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	f.store.mu.Lock()
	delete(f.store.players, "alice")
	f.store.mu.Unlock()

	_, err = f.svc.Accept(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, player.ErrNotFound)

	stored, err := f.store.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Empty(t, f.sessions.started)
	assert.False(t, f.sessions.Busy("alice"))
	assert.False(t, f.sessions.Busy("bob"))
	assert.Empty(t, f.notifier.started)
}

func TestAccept_ConcurrentAcceptStartsOneSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Accept(ctx, inv.ID, "bob")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Len(t, f.sessions.started, 1)
}

func TestReject_NotifiesSenderOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)

	require.NoError(t, f.svc.Reject(ctx, inv.ID, "bob"))
	require.NoError(t, f.svc.Reject(ctx, inv.ID, "bob"))
	require.Len(t, f.notifier.rejected, 1)
	assert.Equal(t, "alice", f.notifier.rejected[0].SenderID)

	stored, err := f.store.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, stored.Status)

	_, err = f.svc.Accept(ctx, inv.ID, "bob")
	assert.ErrorIs(t, err, ErrInviteNotPending)
}

func TestReject_MissingIsNoop(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Reject(context.Background(), "missing", "bob"))
	assert.Empty(t, f.notifier.rejected)
}

func TestReject_AcceptedInviteStaysAccepted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv, err := f.svc.Send(ctx, "alice", "bob")
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, inv.ID, "bob")
	require.NoError(t, err)

	err = f.svc.Reject(ctx, inv.ID, "bob")
	assert.True(t, errors.Is(err, ErrInviteNotPending))
	stored, err := f.store.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, stored.Status)
}
