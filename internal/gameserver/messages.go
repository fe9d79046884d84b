package gameserver

import (
	"errors"

	"github.com/cory-johannsen/arena/internal/game/invite"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
)

// Client-facing error messages.
const (
	msgNotAuthenticated = "Not authenticated"
	msgIdentityMismatch = "User does not match authenticated identity"
	msgUserNotFound     = "User not found"
	msgAuthFailed       = "Authentication failed"
	msgMalformed        = "Malformed message"
	msgUnknownEvent     = "Unknown event"
	msgFetchUsersFailed = "Failed to fetch online users"

	msgUserOffline     = "User is not online"
	msgUserInGame      = "User is already in a game"
	msgSelfInvite      = "Cannot invite yourself"
	msgInvalidInvite   = "Invalid invite"
	msgSendFailed      = "Failed to send invite"
	msgAcceptFailed    = "Failed to accept invite"
	msgRejectFailed    = "Failed to reject invite"
	msgMoveFailed      = "Failed to make move"
	msgGameNotFound    = "Game not found"
	msgGameNotActive   = "Game is not in progress"
	msgNotYourTurn     = "Not your turn"
	msgTimeLimit       = "Time limit exceeded"
	msgInvalidPosition = "Invalid position"
	msgPositionTaken   = "Position already taken"
)

// inviteMessage maps a handshake error onto its wire text. fallback covers
// infrastructure failures.
func inviteMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, invite.ErrReceiverOffline):
		return msgUserOffline
	case errors.Is(err, invite.ErrReceiverBusy),
		errors.Is(err, invite.ErrSenderBusy),
		errors.Is(err, match.ErrPlayerBusy):
		return msgUserInGame
	case errors.Is(err, invite.ErrSelfInvite):
		return msgSelfInvite
	case errors.Is(err, invite.ErrInviteNotFound),
		errors.Is(err, invite.ErrInviteNotPending),
		errors.Is(err, invite.ErrNotInvitee):
		return msgInvalidInvite
	case errors.Is(err, player.ErrNotFound):
		return msgUserNotFound
	}
	return fallback
}

// moveMessage maps a move error onto its wire text.
func moveMessage(err error) string {
	switch {
	case errors.Is(err, match.ErrSessionNotFound):
		return msgGameNotFound
	case errors.Is(err, match.ErrSessionCompleted):
		return msgGameNotActive
	case errors.Is(err, match.ErrNotYourTurn):
		return msgNotYourTurn
	case errors.Is(err, match.ErrTimeLimitExceeded):
		return msgTimeLimit
	case errors.Is(err, match.ErrInvalidPosition):
		return msgInvalidPosition
	case errors.Is(err, match.ErrPositionTaken):
		return msgPositionTaken
	}
	return msgMoveFailed
}
