// Package player defines the persistent player record shared by the core components.
package player

import (
	"errors"
	"time"

	"github.com/cory-johannsen/arena/internal/game/rating"
)

var (
	// ErrNotFound is returned when no player has the requested id or username.
	ErrNotFound = errors.New("user not found")
	// ErrUsernameTaken is returned when registering a duplicate username.
	ErrUsernameTaken = errors.New("username already taken")
)

// Player is a registered participant.
//
// Rating, the counters, and the streaks are written only by match settlement.
// Online mirrors the presence registry and is maintained best-effort.
type Player struct {
	// ID is the externally issued stable identity.
	ID string
	// Username is the display name.
	Username string
	// Rating is the Elo rating, starting at rating.BaseRating.
	Rating int
	// Wins, Losses, and Draws count finished matches.
	Wins   int
	Losses int
	Draws  int
	// CurrentStreak is positive for consecutive wins and negative for consecutive losses.
	CurrentStreak int
	// BestStreak is the largest |CurrentStreak| ever observed.
	BestStreak int
	// Online is true while the player holds a live connection.
	Online    bool
	CreatedAt time.Time
}

// New returns a player at the base rating with no history.
func New(id, username string) Player {
	return Player{
		ID:       id,
		Username: username,
		Rating:   rating.BaseRating,
	}
}

// Record extracts the rating-owned fields.
func (p Player) Record() rating.Record {
	return rating.Record{
		Rating:        p.Rating,
		Wins:          p.Wins,
		Losses:        p.Losses,
		Draws:         p.Draws,
		CurrentStreak: p.CurrentStreak,
		BestStreak:    p.BestStreak,
	}
}

// WithRecord returns a copy of p carrying r's rating-owned fields.
func (p Player) WithRecord(r rating.Record) Player {
	p.Rating = r.Rating
	p.Wins = r.Wins
	p.Losses = r.Losses
	p.Draws = r.Draws
	p.CurrentStreak = r.CurrentStreak
	p.BestStreak = r.BestStreak
	return p
}

// GamesPlayed returns the total number of finished matches.
func (p Player) GamesPlayed() int {
	return p.Wins + p.Losses + p.Draws
}
