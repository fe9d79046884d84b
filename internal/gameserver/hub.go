package gameserver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/invite"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/game/presence"
)

// Invites is the handshake surface of invite.Service.
type Invites interface {
	Send(ctx context.Context, senderID, receiverID string) (invite.Invite, error)
	Accept(ctx context.Context, inviteID, accepterID string) (match.Session, error)
	Reject(ctx context.Context, inviteID, rejecterID string) error
}

// Connector binds players to connection handles.
type Connector interface {
	Connect(playerID string, h presence.Handle)
}

// OnlineLister builds the online list.
type OnlineLister interface {
	OnlineUsers(ctx context.Context) ([]OnlineUser, error)
}

// Client is the per-connection state owned by the connection's reader
// goroutine. It is never shared between goroutines.
type Client struct {
	handle presence.Handle
	// subject is the verified token subject; the only id this connection may act as.
	subject string
	// playerID is set once authenticate succeeds.
	playerID string
}

// NewClient creates the state for a connection whose token verified as subject.
func NewClient(h presence.Handle, subject string) *Client {
	return &Client{handle: h, subject: subject}
}

// PlayerID returns the authenticated player, or "" before authenticate.
func (c *Client) PlayerID() string {
	return c.playerID
}

// Hub decodes inbound frames and routes them to the core components.
type Hub struct {
	connector   Connector
	directory   Directory
	online      OnlineLister
	sessions    Sessions
	invites     Invites
	coordinator *Coordinator
	timeout     time.Duration
	logger      *zap.Logger
}

// HubDeps groups the collaborators of a Hub.
type HubDeps struct {
	Connector   Connector
	Directory   Directory
	Online      OnlineLister
	Sessions    Sessions
	Invites     Invites
	Coordinator *Coordinator
}

// NewHub creates a Hub. timeout bounds each request; timeout <= 0 selects 5s.
//
// Precondition: every field of deps and logger must be non-nil.
func NewHub(deps HubDeps, timeout time.Duration, logger *zap.Logger) *Hub {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Hub{
		connector:   deps.Connector,
		directory:   deps.Directory,
		online:      deps.Online,
		sessions:    deps.Sessions,
		invites:     deps.Invites,
		coordinator: deps.Coordinator,
		timeout:     timeout,
		logger:      logger,
	}
}

// Handle decodes one frame from c and dispatches it. Replies go to c's
// handle; errors are reported to the client, never returned.
func (h *Hub) Handle(ctx context.Context, c *Client, frame []byte) {
	req, err := Decode(frame)
	if err != nil {
		h.logger.Debug("rejecting frame", zap.String("handle", c.handle.ID()), zap.Error(err))
		msg := msgMalformed
		if errors.Is(err, ErrUnknownEvent) {
			msg = msgUnknownEvent
		}
		h.reply(c, EventError, MessagePayload{Message: msg})
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	h.dispatch(ctx, c, req)
}

// Disconnect runs the forfeit path for c's handle.
func (h *Hub) Disconnect(ctx context.Context, c *Client) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	h.coordinator.Disconnect(ctx, c.handle.ID())
}

// dispatch routes a decoded request to its handler.
func (h *Hub) dispatch(ctx context.Context, c *Client, req Request) {
	if _, ok := req.(*AuthenticateRequest); !ok && c.playerID == "" {
		h.reply(c, errorEventFor(req), MessagePayload{Message: msgNotAuthenticated})
		return
	}
	switch r := req.(type) {
	case *AuthenticateRequest:
		h.handleAuthenticate(ctx, c, r)
	case *GetOnlineUsersRequest:
		h.handleGetOnlineUsers(ctx, c)
	case *SendInviteRequest:
		h.handleSendInvite(ctx, c, r)
	case *AcceptInviteRequest:
		h.handleAcceptInvite(ctx, c, r)
	case *RejectInviteRequest:
		h.handleRejectInvite(ctx, c, r)
	case *MakeMoveRequest:
		h.handleMakeMove(ctx, c, r)
	default:
		h.reply(c, EventError, MessagePayload{Message: msgUnknownEvent})
	}
}

func (h *Hub) handleAuthenticate(ctx context.Context, c *Client, r *AuthenticateRequest) {
	if r.UserID == "" || r.UserID != c.subject {
		h.reply(c, EventError, MessagePayload{Message: msgIdentityMismatch})
		return
	}
	p, err := h.directory.GetPlayer(ctx, r.UserID)
	if err != nil {
		msg := msgAuthFailed
		if errors.Is(err, player.ErrNotFound) {
			msg = msgUserNotFound
		} else {
			h.logger.Error("loading player on authenticate", zap.String("player_id", r.UserID), zap.Error(err))
		}
		h.reply(c, EventError, MessagePayload{Message: msg})
		return
	}
	c.playerID = p.ID
	h.connector.Connect(p.ID, c.handle)
	h.reply(c, EventAuthenticated, AuthenticatedPayload{UserID: p.ID, Username: p.Username})
	h.logger.Info("player authenticated",
		zap.String("player_id", p.ID),
		zap.String("username", p.Username),
		zap.String("handle", c.handle.ID()),
	)
}

func (h *Hub) handleGetOnlineUsers(ctx context.Context, c *Client) {
	users, err := h.online.OnlineUsers(ctx)
	if err != nil {
		h.logger.Error("listing online users", zap.Error(err))
		h.reply(c, EventError, MessagePayload{Message: msgFetchUsersFailed})
		return
	}
	h.reply(c, EventOnlineUsers, users)
}

func (h *Hub) handleSendInvite(ctx context.Context, c *Client, r *SendInviteRequest) {
	if r.SenderID != c.playerID {
		h.reply(c, EventInviteError, MessagePayload{Message: msgIdentityMismatch})
		return
	}
	inv, err := h.invites.Send(ctx, c.playerID, r.ReceiverID)
	if err != nil {
		h.logFailure("send invite", c, err)
		h.reply(c, EventInviteError, MessagePayload{Message: inviteMessage(err, msgSendFailed)})
		return
	}
	h.reply(c, EventInviteSent, InviteSentPayload{InviteID: inv.ID})
}

func (h *Hub) handleAcceptInvite(ctx context.Context, c *Client, r *AcceptInviteRequest) {
	if _, err := h.invites.Accept(ctx, r.InviteID, c.playerID); err != nil {
		h.logFailure("accept invite", c, err)
		h.reply(c, EventInviteError, MessagePayload{Message: inviteMessage(err, msgAcceptFailed)})
	}
}

func (h *Hub) handleRejectInvite(ctx context.Context, c *Client, r *RejectInviteRequest) {
	if err := h.invites.Reject(ctx, r.InviteID, c.playerID); err != nil {
		h.logFailure("reject invite", c, err)
		h.reply(c, EventInviteError, MessagePayload{Message: inviteMessage(err, msgRejectFailed)})
	}
}

func (h *Hub) handleMakeMove(ctx context.Context, c *Client, r *MakeMoveRequest) {
	if r.UserID != c.playerID {
		h.reply(c, EventMoveError, MessagePayload{Message: msgIdentityMismatch})
		return
	}
	if _, err := h.sessions.AttemptMove(ctx, r.GameID, c.playerID, r.Position); err != nil {
		h.logFailure("make move", c, err)
		h.reply(c, EventMoveError, MessagePayload{Message: moveMessage(err)})
	}
}

// logFailure logs rule violations at debug and everything else at error.
func (h *Hub) logFailure(op string, c *Client, err error) {
	fields := []zap.Field{
		zap.String("op", op),
		zap.String("player_id", c.playerID),
		zap.Error(err),
	}
	if moveMessage(err) != msgMoveFailed || inviteMessage(err, "") != "" {
		h.logger.Debug("request refused", fields...)
		return
	}
	h.logger.Error("request failed", fields...)
}

func (h *Hub) reply(c *Client, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		h.logger.Error("encoding reply", zap.String("event", event), zap.Error(err))
		return
	}
	if err := c.handle.Push(frame); err != nil {
		h.logger.Debug("reply dropped",
			zap.String("handle", c.handle.ID()),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}

// errorEventFor picks the error event a client expects for req.
func errorEventFor(req Request) string {
	switch req.(type) {
	case *SendInviteRequest, *AcceptInviteRequest, *RejectInviteRequest:
		return EventInviteError
	case *MakeMoveRequest:
		return EventMoveError
	}
	return EventError
}
