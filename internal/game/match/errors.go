package match

import "errors"

var (
	// ErrSessionNotFound is returned when no session has the given id.
	ErrSessionNotFound = errors.New("game not found")
	// ErrSessionCompleted is returned when acting on a finished session.
	ErrSessionCompleted = errors.New("game is not in progress")
	// ErrNotYourTurn is returned when the mover is not CurrentTurn.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrTimeLimitExceeded is wrapped by TimeoutError.
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	// ErrInvalidPosition is returned for a position outside [0,8].
	ErrInvalidPosition = errors.New("invalid position")
	// ErrPositionTaken is returned when the target slot is already claimed.
	ErrPositionTaken = errors.New("position already taken")
	// ErrNotParticipant is returned when forfeiting for a player outside the session.
	ErrNotParticipant = errors.New("player is not a participant")
	// ErrPlayerBusy is returned when starting a session for a player already in one.
	ErrPlayerBusy = errors.New("player is already in a game")
)

// TimeoutError reports that the mover ran out of time and forfeited.
type TimeoutError struct {
	WinnerID string
}

func (e *TimeoutError) Error() string {
	return ErrTimeLimitExceeded.Error()
}

// Unwrap lets errors.Is match ErrTimeLimitExceeded.
func (e *TimeoutError) Unwrap() error {
	return ErrTimeLimitExceeded
}

// BusyError names the participant that blocked Start.
type BusyError struct {
	PlayerID string
}

func (e *BusyError) Error() string {
	return "player " + e.PlayerID + " is already in a game"
}

// Unwrap lets errors.Is match ErrPlayerBusy.
func (e *BusyError) Unwrap() error {
	return ErrPlayerBusy
}
