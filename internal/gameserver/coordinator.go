package gameserver

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/match"
)

// Sessions is the slice of match.Table the gateway drives.
type Sessions interface {
	AttemptMove(ctx context.Context, sessionID, playerID string, pos int) (match.Session, error)
	ActiveFor(playerID string) []string
	Forfeit(ctx context.Context, sessionID, loserID string, reason match.Reason) (match.Outcome, bool, error)
}

// Presence is the slice of presence.Registry the coordinator needs.
type Presence interface {
	Disconnect(handleID string) (string, bool)
}

// Roster announces the online list.
type Roster interface {
	BroadcastOnline(ctx context.Context)
}

// Coordinator forfeits every in-progress session of a player whose
// connection dropped.
type Coordinator struct {
	presence Presence
	sessions Sessions
	roster   Roster
	logger   *zap.Logger
}

// NewCoordinator creates a Coordinator.
//
// Precondition: every argument must be non-nil.
func NewCoordinator(presence Presence, sessions Sessions, roster Roster, logger *zap.Logger) *Coordinator {
	return &Coordinator{presence: presence, sessions: sessions, roster: roster, logger: logger}
}

// Disconnect unbinds handleID and forfeits each of its player's in-progress
// sessions with reason disconnect. A handle that is unknown or was replaced
// by a newer connection is a no-op, so a reconnected player keeps playing.
//
// Postcondition: Returns the number of sessions this call terminated. The
// online list is broadcast after the last forfeit has settled.
func (c *Coordinator) Disconnect(ctx context.Context, handleID string) int {
	playerID, ok := c.presence.Disconnect(handleID)
	if !ok {
		return 0
	}
	forfeited := 0
	for _, id := range c.sessions.ActiveFor(playerID) {
		_, ok, err := c.sessions.Forfeit(ctx, id, playerID, match.ReasonDisconnect)
		if err != nil {
			c.logger.Error("forfeiting on disconnect",
				zap.String("game_id", id),
				zap.String("player_id", playerID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			forfeited++
		}
	}
	c.roster.BroadcastOnline(ctx)
	c.logger.Info("player disconnected",
		zap.String("player_id", playerID),
		zap.String("handle", handleID),
		zap.Int("forfeited", forfeited),
	)
	return forfeited
}
