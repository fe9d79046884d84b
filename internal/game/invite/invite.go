// Package invite implements the challenge handshake between two online players.
package invite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
)

// Status is the lifecycle state of an Invite.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusRejected Status = "REJECTED"
)

var (
	ErrReceiverOffline  = errors.New("receiver is not online")
	ErrReceiverBusy     = errors.New("receiver is already in a game")
	ErrSenderBusy       = errors.New("sender is already in a game")
	ErrSelfInvite       = errors.New("cannot invite yourself")
	ErrInviteNotFound   = errors.New("invite not found")
	ErrInviteNotPending = errors.New("invite is not pending")
	ErrNotInvitee       = errors.New("only the invited player may respond")
)

// Invite is a challenge from Sender to Receiver. PENDING moves to ACCEPTED
// or REJECTED exactly once.
type Invite struct {
	ID         string
	SenderID   string
	ReceiverID string
	Status     Status
	CreatedAt  time.Time
}

// Store persists invites and resolves players.
type Store interface {
	CreateInvite(ctx context.Context, inv Invite) error
	// GetInvite returns ErrInviteNotFound when no invite has the id.
	GetInvite(ctx context.Context, id string) (Invite, error)
	// TransitionInvite moves the invite from one status to another atomically.
	// It returns ErrInviteNotPending when the stored status is not from.
	TransitionInvite(ctx context.Context, id string, from, to Status) (Invite, error)
	GetPlayer(ctx context.Context, id string) (player.Player, error)
}

// Presence answers whether a player holds a live connection.
type Presence interface {
	IsOnline(playerID string) bool
}

// Sessions is the slice of the session table the handshake needs.
type Sessions interface {
	Busy(playerID string) bool
	Start(ctx context.Context, player1, player2 string) (match.Session, error)
}

// Notifier delivers best-effort pushes. Implementations never fail.
type Notifier interface {
	InviteReceived(inv Invite, sender player.Player)
	InviteRejected(inv Invite)
	GameStarted(s match.Session, player1, player2 player.Player)
}

// Service runs the handshake.
type Service struct {
	store    Store
	presence Presence
	sessions Sessions
	notifier Notifier
	clock    clockwork.Clock
	logger   *zap.Logger
}

// NewService creates a Service.
//
// Precondition: every argument must be non-nil.
func NewService(store Store, presence Presence, sessions Sessions, notifier Notifier, clock clockwork.Clock, logger *zap.Logger) *Service {
	return &Service{
		store:    store,
		presence: presence,
		sessions: sessions,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

// Send creates a PENDING invite from senderID to receiverID and pushes
// inviteReceived to the receiver.
//
// Precondition: senderID is authenticated.
// Postcondition: On error no invite has been created.
func (s *Service) Send(ctx context.Context, senderID, receiverID string) (Invite, error) {
	if senderID == receiverID {
		return Invite{}, ErrSelfInvite
	}
	if !s.presence.IsOnline(receiverID) {
		return Invite{}, ErrReceiverOffline
	}
	if s.sessions.Busy(receiverID) {
		return Invite{}, ErrReceiverBusy
	}
	if s.sessions.Busy(senderID) {
		return Invite{}, ErrSenderBusy
	}
	sender, err := s.store.GetPlayer(ctx, senderID)
	if err != nil {
		return Invite{}, fmt.Errorf("loading sender: %w", err)
	}
	inv := Invite{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     StatusPending,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		return Invite{}, fmt.Errorf("creating invite: %w", err)
	}
	s.notifier.InviteReceived(inv, sender)
	s.logger.Debug("invite sent",
		zap.String("invite_id", inv.ID),
		zap.String("sender", senderID),
		zap.String("receiver", receiverID),
	)
	return inv, nil
}

// Accept marks the invite ACCEPTED and starts a session with the sender as
// player1. When either participant is already playing, the invite is left
// PENDING and an error wrapping match.ErrPlayerBusy is returned. Both players
// are loaded before anything changes, so a failed lookup leaves the invite
// PENDING and starts no session.
//
// Precondition: accepterID is authenticated.
// Postcondition: On success both participants have been sent gameStarted.
func (s *Service) Accept(ctx context.Context, inviteID, accepterID string) (match.Session, error) {
	inv, err := s.store.GetInvite(ctx, inviteID)
	if err != nil {
		return match.Session{}, err
	}
	if inv.ReceiverID != accepterID {
		return match.Session{}, ErrNotInvitee
	}
	if inv.Status != StatusPending {
		return match.Session{}, ErrInviteNotPending
	}
	p1, err := s.store.GetPlayer(ctx, inv.SenderID)
	if err != nil {
		return match.Session{}, fmt.Errorf("loading sender: %w", err)
	}
	p2, err := s.store.GetPlayer(ctx, inv.ReceiverID)
	if err != nil {
		return match.Session{}, fmt.Errorf("loading receiver: %w", err)
	}
	if _, err := s.store.TransitionInvite(ctx, inviteID, StatusPending, StatusAccepted); err != nil {
		return match.Session{}, err
	}
	sess, err := s.sessions.Start(ctx, inv.SenderID, inv.ReceiverID)
	if err != nil {
		if _, rerr := s.store.TransitionInvite(ctx, inviteID, StatusAccepted, StatusPending); rerr != nil {
			s.logger.Error("reverting accepted invite", zap.String("invite_id", inviteID), zap.Error(rerr))
		}
		return match.Session{}, err
	}
	s.notifier.GameStarted(sess, p1, p2)
	return sess, nil
}

// Reject marks a PENDING invite REJECTED and tells the sender. A missing or
// already rejected invite is a no-op.
//
// Precondition: rejecterID is authenticated.
// Postcondition: The invite, if it exists, is not PENDING.
func (s *Service) Reject(ctx context.Context, inviteID, rejecterID string) error {
	inv, err := s.store.GetInvite(ctx, inviteID)
	if errors.Is(err, ErrInviteNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if inv.ReceiverID != rejecterID {
		return ErrNotInvitee
	}
	switch inv.Status {
	case StatusRejected:
		return nil
	case StatusAccepted:
		return ErrInviteNotPending
	}
	inv, err = s.store.TransitionInvite(ctx, inviteID, StatusPending, StatusRejected)
	if errors.Is(err, ErrInviteNotPending) {
		return nil
	}
	if err != nil {
		return err
	}
	s.notifier.InviteRejected(inv)
	return nil
}
