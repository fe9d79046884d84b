// Package gameserver exposes the match orchestrator to clients over websockets.
// Every frame in both directions is a JSON object {"event": name, "data": payload}.
package gameserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
)

// Inbound event names.
const (
	EventAuthenticate   = "authenticate"
	EventGetOnlineUsers = "getOnlineUsers"
	EventSendInvite     = "sendInvite"
	EventAcceptInvite   = "acceptInvite"
	EventRejectInvite   = "rejectInvite"
	EventMakeMove       = "makeMove"
)

// Outbound event names.
const (
	EventAuthenticated        = "authenticated"
	EventOnlineUsers          = "onlineUsers"
	EventInviteSent           = "inviteSent"
	EventInviteError          = "inviteError"
	EventInviteReceived       = "inviteReceived"
	EventInviteRejected       = "inviteRejected"
	EventGameStarted          = "gameStarted"
	EventGameUpdate           = "gameUpdate"
	EventGameEnded            = "gameEnded"
	EventMoveError            = "moveError"
	EventOpponentDisconnected = "opponentDisconnected"
	EventError                = "error"
)

var (
	// ErrMalformedFrame is returned by Decode for frames that are not a valid envelope.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownEvent is returned by Decode for an event name outside the protocol.
	ErrUnknownEvent = errors.New("unknown event")
)

// Envelope is the framing shared by every message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Request is one decoded inbound event. The set of implementations is closed.
type Request interface {
	eventName() string
}

// AuthenticateRequest binds the connection to a player.
type AuthenticateRequest struct {
	UserID string `json:"userId"`
}

// GetOnlineUsersRequest asks for the current online list.
type GetOnlineUsersRequest struct{}

// SendInviteRequest challenges ReceiverID.
type SendInviteRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// AcceptInviteRequest accepts a pending invite.
type AcceptInviteRequest struct {
	InviteID string `json:"inviteId"`
}

// RejectInviteRequest declines a pending invite.
type RejectInviteRequest struct {
	InviteID string `json:"inviteId"`
}

// MakeMoveRequest claims Position on the board of GameID.
type MakeMoveRequest struct {
	GameID   string `json:"gameId"`
	UserID   string `json:"userId"`
	Position int    `json:"position"`
}

func (*AuthenticateRequest) eventName() string   { return EventAuthenticate }
func (*GetOnlineUsersRequest) eventName() string { return EventGetOnlineUsers }
func (*SendInviteRequest) eventName() string     { return EventSendInvite }
func (*AcceptInviteRequest) eventName() string   { return EventAcceptInvite }
func (*RejectInviteRequest) eventName() string   { return EventRejectInvite }
func (*MakeMoveRequest) eventName() string       { return EventMakeMove }

// Decode parses one inbound frame into its typed request.
//
// Postcondition: Returns a non-nil Request, or an error wrapping
// ErrMalformedFrame or ErrUnknownEvent.
func Decode(frame []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var req Request
	switch env.Event {
	case EventAuthenticate:
		req = &AuthenticateRequest{}
	case EventGetOnlineUsers:
		return &GetOnlineUsersRequest{}, nil
	case EventSendInvite:
		req = &SendInviteRequest{}
	case EventAcceptInvite:
		req = &AcceptInviteRequest{}
	case EventRejectInvite:
		req = &RejectInviteRequest{}
	case EventMakeMove:
		req = &MakeMoveRequest{}
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, env.Event)
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: %s requires a payload", ErrMalformedFrame, env.Event)
	}
	if err := json.Unmarshal(data, req); err != nil {
		return nil, fmt.Errorf("%w: %s payload: %v", ErrMalformedFrame, env.Event, err)
	}
	return req, nil
}

// Encode frames payload under event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// AuthenticatedPayload confirms the connection's identity.
type AuthenticatedPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// MessagePayload carries a human-readable error for error, inviteError and moveError.
type MessagePayload struct {
	Message string `json:"message"`
}

// InviteSentPayload acknowledges a created invite to its sender.
type InviteSentPayload struct {
	InviteID string `json:"inviteId"`
}

// InviteReceivedPayload notifies the receiver of a new invite.
type InviteReceivedPayload struct {
	InviteID string       `json:"inviteId"`
	Sender   InviteSender `json:"sender"`
}

// InviteSender identifies who sent an invite.
type InviteSender struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Elo      int    `json:"elo"`
}

// NewInviteSender projects p for inviteReceived.
func NewInviteSender(p player.Player) InviteSender {
	return InviteSender{ID: p.ID, Username: p.Username, Elo: p.Rating}
}

// OnlineUser is one entry of the onlineUsers list.
type OnlineUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Elo       int    `json:"elo"`
	TotalWins int    `json:"totalWins"`
	TotalLoss int    `json:"totalLoss"`
	IsOnline  bool   `json:"isOnline"`
}

// NewOnlineUser projects p for onlineUsers. Every listed player is online.
func NewOnlineUser(p player.Player) OnlineUser {
	return OnlineUser{
		ID:        p.ID,
		Username:  p.Username,
		Elo:       p.Rating,
		TotalWins: p.Wins,
		TotalLoss: p.Losses,
		IsOnline:  true,
	}
}

// InviteRejectedPayload tells the sender the invite was declined.
type InviteRejectedPayload struct {
	InviteID string `json:"inviteId"`
}

// Opponent identifies the other participant in gameStarted.
type Opponent struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// GameStartedPayload is sent to each participant of a new session.
type GameStartedPayload struct {
	GameID    string   `json:"gameId"`
	Opponent  Opponent `json:"opponent"`
	IsPlayerX bool     `json:"isPlayerX"`
}

// GameUpdatePayload is the full session state after a committed change.
type GameUpdatePayload struct {
	GameID      string    `json:"gameId"`
	Board       []string  `json:"board"`
	CurrentTurn string    `json:"currentTurn"`
	Status      string    `json:"status"`
	WinnerID    *string   `json:"winnerId"`
	LastMoveAt  time.Time `json:"lastMoveAt"`
}

// GameEndedPayload announces termination. Result is win, draw, timeout or disconnect.
type GameEndedPayload struct {
	GameID   string  `json:"gameId"`
	WinnerID *string `json:"winnerId"`
	Result   string  `json:"result"`
}

// OpponentDisconnectedPayload tells the remaining participant they won by forfeit.
type OpponentDisconnectedPayload struct {
	GameID  string `json:"gameId"`
	Message string `json:"message"`
}

// NewGameUpdate projects s onto the wire.
func NewGameUpdate(s match.Session) GameUpdatePayload {
	return GameUpdatePayload{
		GameID:      s.ID,
		Board:       s.Board.Cells(),
		CurrentTurn: s.CurrentTurn,
		Status:      string(s.Status),
		WinnerID:    optional(s.WinnerID),
		LastMoveAt:  s.LastMoveAt.UTC(),
	}
}

func optional(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}
