// Package match owns the lifecycle of two-player sessions: creation, move
// validation, deadline enforcement, and termination with settlement.
package match

import (
	"time"

	"github.com/cory-johannsen/arena/internal/game/board"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/game/rating"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
)

// Reason says how a session terminated.
type Reason string

const (
	ReasonWin        Reason = "win"
	ReasonDraw       Reason = "draw"
	ReasonTimeout    Reason = "timeout"
	ReasonDisconnect Reason = "disconnect"
)

// Forfeit reports whether the reason ended the session off the board.
func (r Reason) Forfeit() bool {
	return r == ReasonTimeout || r == ReasonDisconnect
}

// Session is one match between Player1 (X, moves first) and Player2 (O).
type Session struct {
	ID        string
	Player1ID string
	Player2ID string
	Board     board.Board
	// CurrentTurn is the id of the player expected to move next.
	CurrentTurn string
	Status      Status
	// WinnerID is empty while in progress and after a draw.
	WinnerID      string
	CreatedAt     time.Time
	LastMoveAt    time.Time
	MoveTimeLimit time.Duration
}

// NewSession returns an in-progress session with player1 to move.
func NewSession(id, player1, player2 string, now time.Time, limit time.Duration) Session {
	return Session{
		ID:            id,
		Player1ID:     player1,
		Player2ID:     player2,
		Board:         board.New(),
		CurrentTurn:   player1,
		Status:        StatusInProgress,
		CreatedAt:     now,
		LastMoveAt:    now,
		MoveTimeLimit: limit,
	}
}

// Participant reports whether playerID plays in s.
func (s Session) Participant(playerID string) bool {
	return playerID == s.Player1ID || playerID == s.Player2ID
}

// Opponent returns the other participant.
//
// Precondition: s.Participant(playerID).
func (s Session) Opponent(playerID string) string {
	if playerID == s.Player1ID {
		return s.Player2ID
	}
	return s.Player1ID
}

// SymbolOf returns the symbol playerID places.
func (s Session) SymbolOf(playerID string) (board.Symbol, bool) {
	switch playerID {
	case s.Player1ID:
		return board.X, true
	case s.Player2ID:
		return board.O, true
	}
	return board.Empty, false
}

// OwnerOf returns the player who places sym.
func (s Session) OwnerOf(sym board.Symbol) string {
	switch sym {
	case board.X:
		return s.Player1ID
	case board.O:
		return s.Player2ID
	}
	return ""
}

// Moves returns how many moves have been made.
func (s Session) Moves() int {
	return s.Board.Filled()
}

// Active reports whether s is still in progress.
func (s Session) Active() bool {
	return s.Status == StatusInProgress
}

// Outcome describes a terminated session.
type Outcome struct {
	// Session is the final COMPLETED snapshot.
	Session Session
	Reason  Reason
	Result  rating.Result
	// WinnerID is empty on a draw.
	WinnerID string
}

// LoserID returns the participant who did not win, or "" on a draw.
func (o Outcome) LoserID() string {
	if o.WinnerID == "" {
		return ""
	}
	return o.Session.Opponent(o.WinnerID)
}

// WinnerSide returns 1 or 2 for the winning seat and 0 for a draw.
func (o Outcome) WinnerSide() int {
	switch o.WinnerID {
	case "":
		return 0
	case o.Session.Player1ID:
		return 1
	default:
		return 2
	}
}

// Record is the write-once archive of a finished match.
type Record struct {
	ID            string
	GameID        string
	Player1ID     string
	Player2ID     string
	WinnerID      string
	Result        rating.Result
	Reason        Reason
	FinalBoard    board.Board
	MovesCount    int
	Duration      time.Duration
	Player1Change int
	Player2Change int
	CreatedAt     time.Time
}

// Settlement is what settling an Outcome produced.
type Settlement struct {
	Record Record
	// Player1 and Player2 are the participants after rating and streak updates.
	Player1 player.Player
	Player2 player.Player
}

// PlayerByID returns the settled participant with the given id.
func (s Settlement) PlayerByID(id string) (player.Player, bool) {
	switch id {
	case s.Player1.ID:
		return s.Player1, true
	case s.Player2.ID:
		return s.Player2, true
	}
	return player.Player{}, false
}

func resultFor(s Session, reason Reason, winnerID string) rating.Result {
	switch {
	case reason.Forfeit():
		return rating.Abandoned
	case winnerID == "":
		return rating.Draw
	case winnerID == s.Player1ID:
		return rating.Player1Win
	default:
		return rating.Player2Win
	}
}
