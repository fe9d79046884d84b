// Package standings settles terminated matches: it applies rating deltas and
// streak changes to both participants and writes the match record.
package standings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/game/rating"
)

// ApplyFunc computes the settled participants and the record from the
// participants as currently stored.
type ApplyFunc func(p1, p2 player.Player) (player.Player, player.Player, match.Record, error)

// Ledger persists a settlement atomically.
type Ledger interface {
	// SettleMatch loads both participants of game under an exclusive lock,
	// calls apply, then persists game, both returned players, and the record
	// as one unit. Nothing is persisted when apply or any write fails.
	SettleMatch(ctx context.Context, game match.Session, apply ApplyFunc) error
}

// Settler implements match.Settler on top of a Ledger.
type Settler struct {
	ledger Ledger
	engine rating.Engine
	clock  clockwork.Clock
	logger *zap.Logger
}

// NewSettler creates a Settler.
//
// Precondition: ledger, clock and logger must be non-nil.
func NewSettler(ledger Ledger, engine rating.Engine, clock clockwork.Clock, logger *zap.Logger) *Settler {
	return &Settler{ledger: ledger, engine: engine, clock: clock, logger: logger}
}

// Settle applies o to both participants and persists the result.
//
// Precondition: o.Session.Status is COMPLETED.
// Postcondition: On success the returned Settlement reflects what was persisted.
func (s *Settler) Settle(ctx context.Context, o match.Outcome) (match.Settlement, error) {
	var out match.Settlement
	err := s.ledger.SettleMatch(ctx, o.Session, func(p1, p2 player.Player) (player.Player, player.Player, match.Record, error) {
		if p1.ID != o.Session.Player1ID || p2.ID != o.Session.Player2ID {
			return p1, p2, match.Record{}, fmt.Errorf("participants %s/%s do not match game %s", p1.ID, p2.ID, o.Session.ID)
		}
		d := s.engine.Apply(p1.Rating, p2.Rating, o.Result)
		o1, o2 := rating.OutcomesFor(o.Result, o.WinnerSide())
		next1 := p1.WithRecord(p1.Record().Apply(o1, d.Player1))
		next2 := p2.WithRecord(p2.Record().Apply(o2, d.Player2))
		now := s.clock.Now()
		rec := match.Record{
			ID:            uuid.NewString(),
			GameID:        o.Session.ID,
			Player1ID:     p1.ID,
			Player2ID:     p2.ID,
			WinnerID:      o.WinnerID,
			Result:        o.Result,
			Reason:        o.Reason,
			FinalBoard:    o.Session.Board,
			MovesCount:    o.Session.Moves(),
			Duration:      now.Sub(o.Session.CreatedAt),
			Player1Change: d.Player1,
			Player2Change: d.Player2,
			CreatedAt:     now,
		}
		out = match.Settlement{Record: rec, Player1: next1, Player2: next2}
		return next1, next2, rec, nil
	})
	if err != nil {
		return match.Settlement{}, fmt.Errorf("settling game %s: %w", o.Session.ID, err)
	}
	s.logger.Debug("match settled",
		zap.String("game_id", o.Session.ID),
		zap.String("result", o.Result.String()),
		zap.Int("player1_change", out.Record.Player1Change),
		zap.Int("player2_change", out.Record.Player2Change),
	)
	return out, nil
}
