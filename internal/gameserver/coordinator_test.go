package gameserver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/arena/internal/game/match"
)

type fakePresence struct {
	handles map[string]string
}

func (p *fakePresence) Disconnect(handleID string) (string, bool) {
	id, ok := p.handles[handleID]
	delete(p.handles, handleID)
	return id, ok
}

type forfeitCall struct {
	sessionID string
	loserID   string
	reason    match.Reason
}

type fakeSessions struct {
	active  map[string][]string
	fail    map[string]error
	settled map[string]bool
	calls   []forfeitCall
}

func (s *fakeSessions) AttemptMove(context.Context, string, string, int) (match.Session, error) {
	return match.Session{}, errors.New("not used")
}

func (s *fakeSessions) ActiveFor(playerID string) []string {
	return s.active[playerID]
}

func (s *fakeSessions) Forfeit(_ context.Context, sessionID, loserID string, reason match.Reason) (match.Outcome, bool, error) {
	s.calls = append(s.calls, forfeitCall{sessionID, loserID, reason})
	if err := s.fail[sessionID]; err != nil {
		return match.Outcome{}, false, err
	}
	if s.settled[sessionID] {
		return match.Outcome{}, false, nil
	}
	return match.Outcome{Reason: reason}, true, nil
}

// fakeRoster records how many forfeits had been attempted at each broadcast.
type fakeRoster struct {
	sessions *fakeSessions
	at       []int
}

func (r *fakeRoster) BroadcastOnline(context.Context) {
	r.at = append(r.at, len(r.sessions.calls))
}

func TestCoordinator_ForfeitsEveryActiveSession(t *testing.T) {
	pres := &fakePresence{handles: map[string]string{"h1": "alice"}}
	sess := &fakeSessions{active: map[string][]string{"alice": {"g1", "g2"}}}
	roster := &fakeRoster{sessions: sess}
	c := NewCoordinator(pres, sess, roster, zaptest.NewLogger(t))

	n := c.Disconnect(context.Background(), "h1")

	assert.Equal(t, 2, n)
	assert.Equal(t, []forfeitCall{
		{"g1", "alice", match.ReasonDisconnect},
		{"g2", "alice", match.ReasonDisconnect},
	}, sess.calls)
	assert.Equal(t, []int{2}, roster.at, "one broadcast, after every forfeit")
}

func TestCoordinator_BroadcastsWithoutSessions(t *testing.T) {
	pres := &fakePresence{handles: map[string]string{"h1": "alice"}}
	sess := &fakeSessions{}
	roster := &fakeRoster{sessions: sess}
	c := NewCoordinator(pres, sess, roster, zaptest.NewLogger(t))

	assert.Zero(t, c.Disconnect(context.Background(), "h1"))
	assert.Equal(t, []int{0}, roster.at)
}

func TestCoordinator_UnknownHandleIsNoop(t *testing.T) {
	pres := &fakePresence{handles: map[string]string{}}
	sess := &fakeSessions{active: map[string][]string{"alice": {"g1"}}}
	roster := &fakeRoster{sessions: sess}
	c := NewCoordinator(pres, sess, roster, zaptest.NewLogger(t))

	assert.Zero(t, c.Disconnect(context.Background(), "stale"))
	assert.Empty(t, sess.calls)
	assert.Empty(t, roster.at, "nothing changed, nothing to announce")
}

func TestCoordinator_FailureDoesNotStopOtherForfeits(t *testing.T) {
	pres := &fakePresence{handles: map[string]string{"h1": "alice"}}
	sess := &fakeSessions{
		active:  map[string][]string{"alice": {"g1", "g2", "g3"}},
		fail:    map[string]error{"g1": errors.New("db down")},
		settled: map[string]bool{"g2": true},
	}
	roster := &fakeRoster{sessions: sess}
	c := NewCoordinator(pres, sess, roster, zaptest.NewLogger(t))

	assert.Equal(t, 1, c.Disconnect(context.Background(), "h1"))
	assert.Len(t, sess.calls, 3)
	assert.Equal(t, []int{3}, roster.at)
}
