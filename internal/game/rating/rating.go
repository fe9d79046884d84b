// Package rating computes Elo rating deltas and win/loss streaks from a match result.
//
// Everything in this package is pure: no I/O, no clocks, no shared state.
package rating

import (
	"fmt"
	"math"
)

const (
	// DefaultK is the Elo K-factor.
	DefaultK = 32
	// BaseRating is the rating every new player starts at.
	BaseRating = 1000
)

// Result is the outcome of a match from the rating engine's point of view.
type Result int

const (
	// Player1Win means the first player (symbol X) won on the board.
	Player1Win Result = iota + 1
	// Player2Win means the second player (symbol O) won on the board.
	Player2Win
	// Draw means the board filled with no winning line.
	Draw
	// Abandoned covers timeout and disconnect forfeits. Ratings never move.
	Abandoned
)

// String returns the persisted name of the result.
func (r Result) String() string {
	switch r {
	case Player1Win:
		return "PLAYER1_WIN"
	case Player2Win:
		return "PLAYER2_WIN"
	case Draw:
		return "DRAW"
	case Abandoned:
		return "ABANDONED"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// ParseResult is the inverse of Result.String.
//
// Postcondition: Returns the matching Result, or an error for an unknown name.
func ParseResult(s string) (Result, error) {
	switch s {
	case "PLAYER1_WIN":
		return Player1Win, nil
	case "PLAYER2_WIN":
		return Player2Win, nil
	case "DRAW":
		return Draw, nil
	case "ABANDONED":
		return Abandoned, nil
	}
	return 0, fmt.Errorf("unknown result %q", s)
}

// Deltas holds the signed rating adjustment for each side of a match.
type Deltas struct {
	Player1 int
	Player2 int
}

// Engine applies the Elo formula with a fixed K-factor.
type Engine struct {
	K int
}

// NewEngine returns an Engine using k, or DefaultK when k <= 0.
func NewEngine(k int) Engine {
	if k <= 0 {
		k = DefaultK
	}
	return Engine{K: k}
}

// Expected returns the expected score of a player rated r1 against a player rated r2.
//
// Postcondition: Result is in (0, 1); Expected(a, b) + Expected(b, a) == 1.
func Expected(r1, r2 int) float64 {
	return 1 / (1 + math.Pow(10, float64(r2-r1)/400))
}

// Apply computes the rating deltas for a match between ratings p1 and p2.
//
// Postcondition: Abandoned yields zero deltas regardless of the rating gap.
func (e Engine) Apply(p1, p2 int, result Result) Deltas {
	var actual1, actual2 float64
	switch result {
	case Player1Win:
		actual1, actual2 = 1, 0
	case Player2Win:
		actual1, actual2 = 0, 1
	case Draw:
		actual1, actual2 = 0.5, 0.5
	default:
		return Deltas{}
	}

	e1 := Expected(p1, p2)
	e2 := 1 - e1
	k := float64(e.K)
	return Deltas{
		Player1: roundHalfUp(k * (actual1 - e1)),
		Player2: roundHalfUp(k * (actual2 - e2)),
	}
}

// roundHalfUp rounds x to the nearest integer with ties going toward +Inf.
func roundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}
