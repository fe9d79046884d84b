package gameserver

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/arena/internal/game/invite"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/game/presence"
	"github.com/cory-johannsen/arena/internal/game/rating"
)

type sent struct {
	to    string
	event string
	data  json.RawMessage
}

type fakePusher struct {
	mu        sync.Mutex
	online    map[string]bool
	sent      []sent
	broadcast []sent
}

func newFakePusher(online ...string) *fakePusher {
	p := &fakePusher{online: make(map[string]bool)}
	for _, id := range online {
		p.online[id] = true
	}
	return p
}

func (p *fakePusher) Send(playerID string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.online[playerID] {
		return presence.ErrOffline
	}
	p.sent = append(p.sent, decodeSent(playerID, data))
	return nil
}

func (p *fakePusher) Broadcast(data []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.broadcast = append(p.broadcast, decodeSent("*", data))
	return len(p.online)
}

func (p *fakePusher) ListOnline() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *fakePusher) to(playerID string) []sent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []sent
	for _, s := range p.sent {
		if s.to == playerID {
			out = append(out, s)
		}
	}
	return out
}

func decodeSent(to string, data []byte) sent {
	var env Envelope
	_ = json.Unmarshal(data, &env)
	return sent{to: to, event: env.Event, data: env.Data}
}

type fakeDirectory struct {
	mu      sync.Mutex
	players map[string]player.Player
	online  map[string]bool
}

func newFakeDirectory(players ...player.Player) *fakeDirectory {
	d := &fakeDirectory{players: make(map[string]player.Player), online: make(map[string]bool)}
	for _, p := range players {
		d.players[p.ID] = p
	}
	return d
}

func (d *fakeDirectory) GetPlayer(_ context.Context, id string) (player.Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.players[id]
	if !ok {
		return player.Player{}, player.ErrNotFound
	}
	return p, nil
}

func (d *fakeDirectory) GetPlayers(_ context.Context, ids []string) ([]player.Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []player.Player
	for _, id := range ids {
		if p, ok := d.players[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (d *fakeDirectory) SetOnline(_ context.Context, id string, online bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.players[id]; !ok {
		return player.ErrNotFound
	}
	d.online[id] = online
	return nil
}

func finishedSession(reason match.Reason, winner string) match.Outcome {
	s := match.NewSession("g1", "alice", "bob", time.Now(), 30*time.Second)
	s.Status = match.StatusCompleted
	s.WinnerID = winner
	result := rating.Player1Win
	switch {
	case reason.Forfeit():
		result = rating.Abandoned
	case winner == "":
		result = rating.Draw
	}
	return match.Outcome{Session: s, Reason: reason, Result: result, WinnerID: winner}
}

func TestNotifier_GameStartedTellsEachSideItsSymbol(t *testing.T) {
	pusher := newFakePusher("alice", "bob")
	n := NewNotifier(pusher, newFakeDirectory(), time.Second, zaptest.NewLogger(t))
	s := match.NewSession("g1", "alice", "bob", time.Now(), 30*time.Second)

	n.GameStarted(s, player.New("alice", "Alice"), player.New("bob", "Bob"))

	var a, b GameStartedPayload
	require.Len(t, pusher.to("alice"), 1)
	require.NoError(t, json.Unmarshal(pusher.to("alice")[0].data, &a))
	require.NoError(t, json.Unmarshal(pusher.to("bob")[0].data, &b))
	assert.Equal(t, GameStartedPayload{GameID: "g1", Opponent: Opponent{ID: "bob", Username: "Bob"}, IsPlayerX: true}, a)
	assert.Equal(t, GameStartedPayload{GameID: "g1", Opponent: Opponent{ID: "alice", Username: "Alice"}, IsPlayerX: false}, b)
}

func TestNotifier_EndedSendsGameEndedToBoth(t *testing.T) {
	pusher := newFakePusher("alice", "bob")
	n := NewNotifier(pusher, newFakeDirectory(), time.Second, zaptest.NewLogger(t))

	n.Ended(finishedSession(match.ReasonWin, "alice"), match.Settlement{})

	for _, id := range []string{"alice", "bob"} {
		frames := pusher.to(id)
		require.Len(t, frames, 1, id)
		assert.Equal(t, EventGameEnded, frames[0].event)
		assert.JSONEq(t, `{"gameId":"g1","winnerId":"alice","result":"win"}`, string(frames[0].data))
	}
}

func TestNotifier_EndedByDisconnectTellsOnlyTheWinner(t *testing.T) {
	pusher := newFakePusher("alice", "bob")
	n := NewNotifier(pusher, newFakeDirectory(), time.Second, zaptest.NewLogger(t))
	st := match.Settlement{
		Player1: player.New("alice", "Alice"),
		Player2: player.New("bob", "Bob"),
	}

	n.Ended(finishedSession(match.ReasonDisconnect, "alice"), st)

	assert.Empty(t, pusher.to("bob"))
	frames := pusher.to("alice")
	require.Len(t, frames, 1)
	assert.Equal(t, EventOpponentDisconnected, frames[0].event)
	assert.JSONEq(t, `{"gameId":"g1","message":"Bob disconnected. You win!"}`, string(frames[0].data))
}

func TestNotifier_OfflineRecipientIsSkipped(t *testing.T) {
	pusher := newFakePusher("alice")
	n := NewNotifier(pusher, newFakeDirectory(), time.Second, zaptest.NewLogger(t))

	n.InviteRejected(invite.Invite{ID: "i1", SenderID: "bob", ReceiverID: "alice"})
	n.InviteReceived(invite.Invite{ID: "i2", SenderID: "bob", ReceiverID: "alice"}, player.New("bob", "Bob"))

	frames := pusher.to("alice")
	require.Len(t, frames, 1)
	assert.Equal(t, EventInviteReceived, frames[0].event)
	var got InviteReceivedPayload
	require.NoError(t, json.Unmarshal(frames[0].data, &got))
	assert.Equal(t, "i2", got.InviteID)
	assert.Equal(t, "Bob", got.Sender.Username)
	assert.Equal(t, rating.BaseRating, got.Sender.Elo)
}

func TestNotifier_PresenceChangedMirrorsAndBroadcasts(t *testing.T) {
	pusher := newFakePusher("alice", "bob")
	alice := player.New("alice", "Alice")
	alice.Wins = 3
	dir := newFakeDirectory(alice, player.New("bob", "Bob"))
	n := NewNotifier(pusher, dir, time.Second, zaptest.NewLogger(t))

	n.PresenceChanged(presence.Change{PlayerID: "alice", Online: true})

	assert.True(t, dir.online["alice"])
	require.Len(t, pusher.broadcast, 1)
	assert.Equal(t, EventOnlineUsers, pusher.broadcast[0].event)
	var users []OnlineUser
	require.NoError(t, json.Unmarshal(pusher.broadcast[0].data, &users))
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].Username)
	assert.Equal(t, 3, users[0].TotalWins)
	assert.True(t, users[0].IsOnline)
	assert.True(t, users[1].IsOnline)
}

func TestNotifier_OfflineChangeOnlyMirrors(t *testing.T) {
	pusher := newFakePusher("bob")
	dir := newFakeDirectory(player.New("alice", "Alice"), player.New("bob", "Bob"))
	dir.online["alice"] = true
	n := NewNotifier(pusher, dir, time.Second, zaptest.NewLogger(t))

	n.PresenceChanged(presence.Change{PlayerID: "alice", Online: false})

	assert.False(t, dir.online["alice"])
	assert.Empty(t, pusher.broadcast)

	n.BroadcastOnline(context.Background())
	require.Len(t, pusher.broadcast, 1)
	var users []OnlineUser
	require.NoError(t, json.Unmarshal(pusher.broadcast[0].data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "bob", users[0].ID)
}

func TestNotifier_OnlineUsersEmpty(t *testing.T) {
	n := NewNotifier(newFakePusher(), newFakeDirectory(), time.Second, zaptest.NewLogger(t))
	users, err := n.OnlineUsers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}
