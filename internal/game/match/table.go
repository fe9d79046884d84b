package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cory-johannsen/arena/internal/game/board"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// DefaultMoveTimeLimit is the per-move allowance when none is configured.
const DefaultMoveTimeLimit = 30 * time.Second

// Store persists sessions.
type Store interface {
	CreateGame(ctx context.Context, s Session) error
	SaveGame(ctx context.Context, s Session) error
	// GetGame returns ErrSessionNotFound when no game has the id.
	GetGame(ctx context.Context, id string) (Session, error)
	ListActiveGames(ctx context.Context) ([]Session, error)
}

// Settler applies the consequences of a terminated session.
//
// Settle must persist the COMPLETED session, the match record, and both
// players' rating changes as one unit. When it returns an error nothing
// has been persisted.
type Settler interface {
	Settle(ctx context.Context, o Outcome) (Settlement, error)
}

// Listener observes committed session changes. Calls are made while the
// session is locked, so implementations must not block and must not call
// back into the Table.
type Listener interface {
	// Updated is called after every committed move and on termination,
	// except a disconnect forfeit, which is reported through Ended alone.
	Updated(s Session)
	// Ended is called once per session after settlement succeeded.
	Ended(o Outcome, st Settlement)
}

// Config tunes a Table.
type Config struct {
	MoveTimeLimit time.Duration
	// EnforceDeadline arms a timer per session so an idle mover forfeits
	// without having to attempt a move.
	EnforceDeadline bool
	// SettleTimeout bounds settlement triggered by the deadline timer.
	SettleTimeout time.Duration
}

type entry struct {
	mu    sync.Mutex
	sess  Session
	gone  bool
	timer *DeadlineTimer
}

// Table holds every in-progress session and serializes moves per session.
//
// Lock order: an entry lock may be held while taking the table lock, never
// the reverse.
type Table struct {
	mu       sync.RWMutex
	live     map[string]*entry
	byPlayer map[string]map[string]struct{}

	cfg      Config
	store    Store
	settler  Settler
	listener Listener
	clock    clockwork.Clock
	logger   *zap.Logger
	newID    func() string
}

// NewTable creates an empty Table.
//
// Precondition: store, settler, listener, clock and logger must be non-nil.
// Postcondition: Returns a Table with no live sessions.
func NewTable(cfg Config, store Store, settler Settler, listener Listener, clock clockwork.Clock, logger *zap.Logger) *Table {
	if cfg.MoveTimeLimit <= 0 {
		cfg.MoveTimeLimit = DefaultMoveTimeLimit
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 5 * time.Second
	}
	return &Table{
		live:     make(map[string]*entry),
		byPlayer: make(map[string]map[string]struct{}),
		cfg:      cfg,
		store:    store,
		settler:  settler,
		listener: listener,
		clock:    clock,
		logger:   logger,
		newID:    uuid.NewString,
	}
}

// Start creates and persists a session between player1 and player2 unless
// either of them is already playing. The busy check and the reservation
// happen under one lock, so concurrent Starts cannot double-book a player.
//
// Precondition: player1 != player2.
// Postcondition: On success the session is live, persisted, and player1 is to move.
func (t *Table) Start(ctx context.Context, player1, player2 string) (Session, error) {
	if player1 == player2 {
		return Session{}, fmt.Errorf("starting session: %w", ErrNotParticipant)
	}
	now := t.clock.Now()
	e := &entry{sess: NewSession(t.newID(), player1, player2, now, t.cfg.MoveTimeLimit)}
	e.mu.Lock()
	defer e.mu.Unlock()

	t.mu.Lock()
	for _, id := range []string{player1, player2} {
		if len(t.byPlayer[id]) > 0 {
			t.mu.Unlock()
			return Session{}, &BusyError{PlayerID: id}
		}
	}
	t.live[e.sess.ID] = e
	t.index(e.sess)
	t.mu.Unlock()

	if err := t.store.CreateGame(ctx, e.sess); err != nil {
		e.gone = true
		t.drop(e.sess)
		return Session{}, fmt.Errorf("persisting session: %w", err)
	}
	t.arm(e)
	t.logger.Info("session started",
		zap.String("session_id", e.sess.ID),
		zap.String("player1", player1),
		zap.String("player2", player2),
	)
	return e.sess, nil
}

// Get returns a snapshot of the session, consulting the store for
// sessions that are no longer live.
func (t *Table) Get(ctx context.Context, id string) (Session, error) {
	if e := t.lookup(id); e != nil {
		e.mu.Lock()
		s, gone := e.sess, e.gone
		e.mu.Unlock()
		if !gone {
			return s, nil
		}
	}
	return t.store.GetGame(ctx, id)
}

// Busy reports whether playerID participates in an in-progress session.
func (t *Table) Busy(playerID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byPlayer[playerID]) > 0
}

// ActiveFor returns the ids of the in-progress sessions playerID is in, sorted.
func (t *Table) ActiveFor(playerID string) []string {
	t.mu.RLock()
	ids := make([]string, 0, len(t.byPlayer[playerID]))
	for id := range t.byPlayer[playerID] {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// LiveCount returns the number of in-progress sessions.
func (t *Table) LiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}

// AttemptMove validates and applies a move by playerID at pos.
//
// Checks run in order: the session exists, it is in progress, it is
// playerID's turn, the move deadline has not passed, pos is on the board,
// and the slot is empty. A passed deadline terminates the session in the
// opponent's favour and returns a *TimeoutError.
//
// Precondition: none.
// Postcondition: On success the move is persisted and listeners notified;
// on any error other than *TimeoutError the session is unchanged.
func (t *Table) AttemptMove(ctx context.Context, sessionID, playerID string, pos int) (Session, error) {
	e := t.lookup(sessionID)
	if e == nil {
		return Session{}, t.missing(ctx, sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return Session{}, t.missing(ctx, sessionID)
	}
	s := e.sess
	if !s.Active() {
		return Session{}, ErrSessionCompleted
	}
	if s.CurrentTurn != playerID {
		return Session{}, ErrNotYourTurn
	}
	if t.clock.Since(s.LastMoveAt) > s.MoveTimeLimit {
		winner := s.Opponent(playerID)
		if err := t.terminate(ctx, e, s, ReasonTimeout, winner); err != nil {
			return Session{}, err
		}
		return e.sess, &TimeoutError{WinnerID: winner}
	}
	if !board.InRange(pos) {
		return Session{}, ErrInvalidPosition
	}
	if !s.Board.IsEmpty(pos) {
		return Session{}, ErrPositionTaken
	}
	sym, _ := s.SymbolOf(playerID)
	placed, err := s.Board.Place(pos, sym)
	if err != nil {
		return Session{}, err
	}

	next := s
	next.Board = placed
	next.LastMoveAt = t.clock.Now()
	if w := placed.Winner(); w != board.Empty {
		if err := t.terminate(ctx, e, next, ReasonWin, next.OwnerOf(w)); err != nil {
			return Session{}, err
		}
		return e.sess, nil
	}
	if placed.Full() {
		if err := t.terminate(ctx, e, next, ReasonDraw, ""); err != nil {
			return Session{}, err
		}
		return e.sess, nil
	}
	next.CurrentTurn = s.Opponent(playerID)
	if err := t.store.SaveGame(ctx, next); err != nil {
		return Session{}, fmt.Errorf("persisting move: %w", err)
	}
	e.sess = next
	t.arm(e)
	t.listener.Updated(next)
	return next, nil
}

// Forfeit terminates an in-progress session with loserID losing for reason.
// It returns ok=false without error when the session is not live or has
// already completed.
//
// Precondition: reason.Forfeit().
// Postcondition: When ok is true the session is settled and listeners notified.
func (t *Table) Forfeit(ctx context.Context, sessionID, loserID string, reason Reason) (Outcome, bool, error) {
	e := t.lookup(sessionID)
	if e == nil {
		return Outcome{}, false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone || !e.sess.Active() {
		return Outcome{}, false, nil
	}
	if !e.sess.Participant(loserID) {
		return Outcome{}, false, ErrNotParticipant
	}
	winner := e.sess.Opponent(loserID)
	if err := t.terminate(ctx, e, e.sess, reason, winner); err != nil {
		return Outcome{}, false, err
	}
	return Outcome{
		Session:  e.sess,
		Reason:   reason,
		Result:   resultFor(e.sess, reason, winner),
		WinnerID: winner,
	}, true, nil
}

// Restore loads every in-progress session from the store into the table.
// Sessions already live are skipped.
//
// Postcondition: Returns the number of sessions restored.
func (t *Table) Restore(ctx context.Context) (int, error) {
	sessions, err := t.store.ListActiveGames(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing active games: %w", err)
	}
	n := 0
	for _, s := range sessions {
		if !s.Active() {
			continue
		}
		if s.MoveTimeLimit <= 0 {
			s.MoveTimeLimit = t.cfg.MoveTimeLimit
		}
		e := &entry{sess: s}
		t.mu.Lock()
		if _, ok := t.live[s.ID]; ok {
			t.mu.Unlock()
			continue
		}
		t.live[s.ID] = e
		t.index(s)
		t.mu.Unlock()
		e.mu.Lock()
		t.arm(e)
		e.mu.Unlock()
		n++
	}
	if n > 0 {
		t.logger.Info("restored sessions", zap.Int("count", n))
	}
	return n, nil
}

// Close stops every deadline timer.
func (t *Table) Close() {
	t.mu.RLock()
	entries := make([]*entry, 0, len(t.live))
	for _, e := range t.live {
		entries = append(entries, e)
	}
	t.mu.RUnlock()
	for _, e := range entries {
		e.mu.Lock()
		if e.timer != nil {
			e.timer.Stop()
		}
		e.mu.Unlock()
	}
}

// terminate settles next as COMPLETED. Caller holds e.mu.
func (t *Table) terminate(ctx context.Context, e *entry, next Session, reason Reason, winnerID string) error {
	next.Status = StatusCompleted
	next.WinnerID = winnerID
	o := Outcome{
		Session:  next,
		Reason:   reason,
		Result:   resultFor(next, reason, winnerID),
		WinnerID: winnerID,
	}
	st, err := t.settler.Settle(ctx, o)
	if err != nil {
		t.logger.Error("settling session",
			zap.String("session_id", next.ID),
			zap.String("reason", string(reason)),
			zap.Error(err),
		)
		return fmt.Errorf("settling session: %w", err)
	}
	e.sess = next
	e.gone = true
	if e.timer != nil {
		e.timer.Stop()
	}
	t.drop(next)
	t.logger.Info("session ended",
		zap.String("session_id", next.ID),
		zap.String("reason", string(reason)),
		zap.String("winner", winnerID),
	)
	if reason != ReasonDisconnect {
		t.listener.Updated(next)
	}
	t.listener.Ended(o, st)
	return nil
}

// arm schedules the idle deadline for e. Caller holds e.mu.
func (t *Table) arm(e *entry) {
	if !t.cfg.EnforceDeadline {
		return
	}
	id, last := e.sess.ID, e.sess.LastMoveAt
	wait := e.sess.MoveTimeLimit - t.clock.Since(last) + time.Millisecond
	if wait <= 0 {
		wait = time.Millisecond
	}
	fire := func() { t.expire(id, last) }
	if e.timer == nil {
		e.timer = NewDeadlineTimer(t.clock, wait, fire)
		return
	}
	e.timer.Reset(wait, fire)
}

func (t *Table) expire(sessionID string, armedAt time.Time) {
	e := t.lookup(sessionID)
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.sess
	if e.gone || !s.Active() || !s.LastMoveAt.Equal(armedAt) {
		return
	}
	if t.clock.Since(s.LastMoveAt) <= s.MoveTimeLimit {
		t.arm(e)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.SettleTimeout)
	defer cancel()
	if err := t.terminate(ctx, e, s, ReasonTimeout, s.Opponent(s.CurrentTurn)); err != nil {
		t.logger.Warn("deadline forfeit failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (t *Table) missing(ctx context.Context, sessionID string) error {
	s, err := t.store.GetGame(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("loading session: %w", err)
	}
	if !s.Active() {
		return ErrSessionCompleted
	}
	return ErrSessionNotFound
}

func (t *Table) lookup(id string) *entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.live[id]
}

// index records s under both participants. Caller holds t.mu.
func (t *Table) index(s Session) {
	for _, p := range []string{s.Player1ID, s.Player2ID} {
		if t.byPlayer[p] == nil {
			t.byPlayer[p] = make(map[string]struct{})
		}
		t.byPlayer[p][s.ID] = struct{}{}
	}
}

func (t *Table) drop(s Session) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, s.ID)
	for _, p := range []string{s.Player1ID, s.Player2ID} {
		delete(t.byPlayer[p], s.ID)
		if len(t.byPlayer[p]) == 0 {
			delete(t.byPlayer, p)
		}
	}
}
