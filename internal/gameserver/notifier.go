package gameserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arena/internal/game/invite"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/game/presence"
)

// Directory is the slice of the Persistence Service the gateway reads players from.
type Directory interface {
	GetPlayer(ctx context.Context, id string) (player.Player, error)
	// GetPlayers returns the known players among ids; unknown ids are skipped.
	GetPlayers(ctx context.Context, ids []string) ([]player.Player, error)
	SetOnline(ctx context.Context, id string, online bool) error
}

// Pusher delivers frames to online players.
type Pusher interface {
	Send(playerID string, data []byte) error
	Broadcast(data []byte) int
	ListOnline() []string
}

// Notifier turns core events into pushes. It implements invite.Notifier and
// match.Listener. Every push is best-effort: a player without a live handle
// simply misses the frame.
type Notifier struct {
	pusher    Pusher
	directory Directory
	timeout   time.Duration
	logger    *zap.Logger
}

var (
	_ invite.Notifier = (*Notifier)(nil)
	_ match.Listener  = (*Notifier)(nil)
)

// NewNotifier creates a Notifier. timeout bounds the directory calls made
// while building the online list; timeout <= 0 selects 5s.
//
// Precondition: pusher, directory and logger must be non-nil.
func NewNotifier(pusher Pusher, directory Directory, timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Notifier{pusher: pusher, directory: directory, timeout: timeout, logger: logger}
}

// InviteReceived pushes inviteReceived to the receiver.
func (n *Notifier) InviteReceived(inv invite.Invite, sender player.Player) {
	n.push(inv.ReceiverID, EventInviteReceived, InviteReceivedPayload{
		InviteID: inv.ID,
		Sender:   NewInviteSender(sender),
	})
}

// InviteRejected pushes inviteRejected to the sender.
func (n *Notifier) InviteRejected(inv invite.Invite) {
	n.push(inv.SenderID, EventInviteRejected, InviteRejectedPayload{InviteID: inv.ID})
}

// GameStarted pushes gameStarted to both participants.
func (n *Notifier) GameStarted(s match.Session, player1, player2 player.Player) {
	n.push(player1.ID, EventGameStarted, GameStartedPayload{
		GameID:    s.ID,
		Opponent:  Opponent{ID: player2.ID, Username: player2.Username},
		IsPlayerX: true,
	})
	n.push(player2.ID, EventGameStarted, GameStartedPayload{
		GameID:    s.ID,
		Opponent:  Opponent{ID: player1.ID, Username: player1.Username},
		IsPlayerX: false,
	})
}

// Updated pushes gameUpdate to both participants.
func (n *Notifier) Updated(s match.Session) {
	frame, err := Encode(EventGameUpdate, NewGameUpdate(s))
	if err != nil {
		n.logger.Error("encoding game update", zap.String("game_id", s.ID), zap.Error(err))
		return
	}
	n.deliver(s.Player1ID, EventGameUpdate, frame)
	n.deliver(s.Player2ID, EventGameUpdate, frame)
}

// Ended announces termination. A disconnect forfeit is reported to the
// remaining participant as opponentDisconnected; every other reason sends
// gameEnded to both.
func (n *Notifier) Ended(o match.Outcome, st match.Settlement) {
	if o.Reason == match.ReasonDisconnect {
		name := o.LoserID()
		if p, ok := st.PlayerByID(o.LoserID()); ok {
			name = p.Username
		}
		n.push(o.WinnerID, EventOpponentDisconnected, OpponentDisconnectedPayload{
			GameID:  o.Session.ID,
			Message: fmt.Sprintf("%s disconnected. You win!", name),
		})
		return
	}
	frame, err := Encode(EventGameEnded, GameEndedPayload{
		GameID:   o.Session.ID,
		WinnerID: optional(o.WinnerID),
		Result:   string(o.Reason),
	})
	if err != nil {
		n.logger.Error("encoding game ended", zap.String("game_id", o.Session.ID), zap.Error(err))
		return
	}
	n.deliver(o.Session.Player1ID, EventGameEnded, frame)
	n.deliver(o.Session.Player2ID, EventGameEnded, frame)
}

// PresenceChanged mirrors c to the directory. A player coming online is
// announced at once. Going offline is announced by the Coordinator after the
// player's sessions are forfeited, so the list carries the settled totals.
// Register it with presence.Registry.Subscribe.
func (n *Notifier) PresenceChanged(c presence.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.directory.SetOnline(ctx, c.PlayerID, c.Online); err != nil && !errors.Is(err, player.ErrNotFound) {
		n.logger.Warn("mirroring presence",
			zap.String("player_id", c.PlayerID),
			zap.Bool("online", c.Online),
			zap.Error(err),
		)
	}
	if c.Online {
		n.BroadcastOnline(ctx)
	}
}

// BroadcastOnline pushes the current online list to every connection.
func (n *Notifier) BroadcastOnline(ctx context.Context) {
	users, err := n.OnlineUsers(ctx)
	if err != nil {
		n.logger.Warn("building online list", zap.Error(err))
		return
	}
	frame, err := Encode(EventOnlineUsers, users)
	if err != nil {
		n.logger.Error("encoding online list", zap.Error(err))
		return
	}
	n.pusher.Broadcast(frame)
}

// OnlineUsers returns every online player ordered by username.
func (n *Notifier) OnlineUsers(ctx context.Context) ([]OnlineUser, error) {
	ids := n.pusher.ListOnline()
	if len(ids) == 0 {
		return []OnlineUser{}, nil
	}
	players, err := n.directory.GetPlayers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading online players: %w", err)
	}
	out := make([]OnlineUser, 0, len(players))
	for _, p := range players {
		out = append(out, NewOnlineUser(p))
	}
	return out, nil
}

func (n *Notifier) push(playerID, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		n.logger.Error("encoding push", zap.String("event", event), zap.Error(err))
		return
	}
	n.deliver(playerID, event, frame)
}

func (n *Notifier) deliver(playerID, event string, frame []byte) {
	err := n.pusher.Send(playerID, frame)
	switch {
	case err == nil:
	case errors.Is(err, presence.ErrOffline):
		n.logger.Debug("push to offline player dropped",
			zap.String("player_id", playerID),
			zap.String("event", event),
		)
	default:
		n.logger.Warn("push failed",
			zap.String("player_id", playerID),
			zap.String("event", event),
			zap.Error(err),
		)
	}
}
