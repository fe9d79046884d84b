// Package memory provides an in-process Persistence Service for standalone
// mode and tests. Every operation is atomic under a single mutex.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cory-johannsen/arena/internal/game/invite"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/game/standings"
)

// Store keeps players, games, invites, and match records in maps.
type Store struct {
	mu      sync.Mutex
	players map[string]player.Player
	games   map[string]match.Session
	invites map[string]invite.Invite
	records []match.Record
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		players: make(map[string]player.Player),
		games:   make(map[string]match.Session),
		invites: make(map[string]invite.Invite),
	}
}

// CreatePlayer registers p.
//
// Postcondition: Returns player.ErrUsernameTaken if the id or username is in use.
func (s *Store) CreatePlayer(_ context.Context, p player.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[p.ID]; ok {
		return player.ErrUsernameTaken
	}
	for _, existing := range s.players {
		if existing.Username == p.Username {
			return player.ErrUsernameTaken
		}
	}
	s.players[p.ID] = p
	return nil
}

// GetPlayer returns the player with id or player.ErrNotFound.
func (s *Store) GetPlayer(_ context.Context, id string) (player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return player.Player{}, player.ErrNotFound
	}
	return p, nil
}

// GetPlayers returns the known players among ids, sorted by username.
// Unknown ids are skipped.
func (s *Store) GetPlayers(_ context.Context, ids []string) ([]player.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]player.Player, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.players[id]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

// SetOnline mirrors presence onto the player record.
func (s *Store) SetOnline(_ context.Context, id string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return player.ErrNotFound
	}
	p.Online = online
	s.players[id] = p
	return nil
}

// ResetPresence marks every player offline.
func (s *Store) ResetPresence(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.players {
		p.Online = false
		s.players[id] = p
	}
	return nil
}

// CreateGame stores a new session.
func (s *Store) CreateGame(_ context.Context, g match.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; ok {
		return fmt.Errorf("game %s already exists", g.ID)
	}
	s.games[g.ID] = g
	return nil
}

// SaveGame replaces an existing session.
func (s *Store) SaveGame(_ context.Context, g match.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; !ok {
		return match.ErrSessionNotFound
	}
	s.games[g.ID] = g
	return nil
}

// GetGame returns the session with id or match.ErrSessionNotFound.
func (s *Store) GetGame(_ context.Context, id string) (match.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[id]
	if !ok {
		return match.Session{}, match.ErrSessionNotFound
	}
	return g, nil
}

// ListActiveGames returns every IN_PROGRESS session, oldest first.
func (s *Store) ListActiveGames(_ context.Context) ([]match.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []match.Session
	for _, g := range s.games {
		if g.Active() {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SettleMatch applies and persists a settlement under the store lock.
func (s *Store) SettleMatch(_ context.Context, g match.Session, apply standings.ApplyFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[g.ID]; !ok {
		return match.ErrSessionNotFound
	}
	p1, ok := s.players[g.Player1ID]
	if !ok {
		return fmt.Errorf("player1 %s: %w", g.Player1ID, player.ErrNotFound)
	}
	p2, ok := s.players[g.Player2ID]
	if !ok {
		return fmt.Errorf("player2 %s: %w", g.Player2ID, player.ErrNotFound)
	}
	n1, n2, rec, err := apply(p1, p2)
	if err != nil {
		return err
	}
	s.players[n1.ID] = n1
	s.players[n2.ID] = n2
	s.games[g.ID] = g
	s.records = append(s.records, rec)
	return nil
}

// Records returns the match records of playerID, newest first.
func (s *Store) Records(_ context.Context, playerID string) ([]match.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []match.Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if r.Player1ID == playerID || r.Player2ID == playerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// CreateInvite stores a new invite.
func (s *Store) CreateInvite(_ context.Context, inv invite.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites[inv.ID] = inv
	return nil
}

// GetInvite returns the invite with id or invite.ErrInviteNotFound.
func (s *Store) GetInvite(_ context.Context, id string) (invite.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return invite.Invite{}, invite.ErrInviteNotFound
	}
	return inv, nil
}

// TransitionInvite moves an invite from one status to another if it is
// currently in from.
func (s *Store) TransitionInvite(_ context.Context, id string, from, to invite.Status) (invite.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[id]
	if !ok {
		return invite.Invite{}, invite.ErrInviteNotFound
	}
	if inv.Status != from {
		return invite.Invite{}, invite.ErrInviteNotPending
	}
	inv.Status = to
	s.invites[id] = inv
	return inv, nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}
