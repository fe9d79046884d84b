package presence

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// ErrOffline is returned by Send when the player holds no connection.
var ErrOffline = errors.New("player is offline")

// Change describes one presence transition.
type Change struct {
	PlayerID string
	Online   bool
}

// Registry maps online players to their connection handles.
// All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	byPlayer map[string]Handle // player id -> handle
	byHandle map[string]string // handle id -> player id

	subMu       sync.RWMutex
	subscribers []func(Change)

	logger *zap.Logger
}

// NewRegistry creates an empty Registry.
//
// Precondition: logger must be non-nil.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byPlayer: make(map[string]Handle),
		byHandle: make(map[string]string),
		logger:   logger,
	}
}

// Subscribe registers fn to run after every Connect and every effective Disconnect.
// fn runs on the caller's goroutine with no registry lock held.
func (r *Registry) Subscribe(fn func(Change)) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

// Connect marks playerID online through h, replacing any handle it held before.
// If h was bound to a different player, that binding is dropped.
//
// Precondition: playerID must be non-empty; h must be non-nil.
// Postcondition: IsOnline(playerID) and HandleOf(playerID) == h.
func (r *Registry) Connect(playerID string, h Handle) {
	r.mu.Lock()
	if prev, ok := r.byPlayer[playerID]; ok && prev.ID() != h.ID() {
		delete(r.byHandle, prev.ID())
		r.logger.Debug("replacing stale handle",
			zap.String("player_id", playerID),
			zap.String("stale_handle", prev.ID()),
			zap.String("handle", h.ID()),
		)
	}
	if owner, ok := r.byHandle[h.ID()]; ok && owner != playerID {
		delete(r.byPlayer, owner)
	}
	r.byPlayer[playerID] = h
	r.byHandle[h.ID()] = playerID
	r.mu.Unlock()

	r.notify(Change{PlayerID: playerID, Online: true})
}

// Disconnect marks the player owning handleID offline.
//
// Postcondition: Returns the owning player id and true, or ("", false) if the
// handle is unknown or was already replaced. Unknown handles are a no-op.
func (r *Registry) Disconnect(handleID string) (string, bool) {
	r.mu.Lock()
	playerID, ok := r.byHandle[handleID]
	if !ok {
		r.mu.Unlock()
		return "", false
	}
	delete(r.byHandle, handleID)
	delete(r.byPlayer, playerID)
	r.mu.Unlock()

	r.notify(Change{PlayerID: playerID, Online: false})
	return playerID, true
}

// IsOnline reports whether playerID holds a live connection.
func (r *Registry) IsOnline(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byPlayer[playerID]
	return ok
}

// HandleOf returns the current handle of playerID.
func (r *Registry) HandleOf(playerID string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byPlayer[playerID]
	return h, ok
}

// PlayerOf returns the player bound to handleID.
func (r *Registry) PlayerOf(handleID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandle[handleID]
	return id, ok
}

// ListOnline returns the ids of all online players in ascending order.
func (r *Registry) ListOnline() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byPlayer))
	for id := range r.byPlayer {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Count returns the number of online players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byPlayer)
}

// Send pushes data to playerID's current handle.
//
// Postcondition: Returns ErrOffline if the player has no handle, or the push error.
func (r *Registry) Send(playerID string, data []byte) error {
	h, ok := r.HandleOf(playerID)
	if !ok {
		return ErrOffline
	}
	return h.Push(data)
}

// Broadcast pushes data to every connected handle. A failed push is logged and
// does not stop delivery to the rest.
//
// Postcondition: Returns the number of handles that accepted the frame.
func (r *Registry) Broadcast(data []byte) int {
	r.mu.RLock()
	handles := make(map[string]Handle, len(r.byPlayer))
	for id, h := range r.byPlayer {
		handles[id] = h
	}
	r.mu.RUnlock()

	delivered := 0
	for id, h := range handles {
		if err := h.Push(data); err != nil {
			r.logger.Warn("broadcast push failed",
				zap.String("player_id", id),
				zap.String("handle", h.ID()),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) notify(c Change) {
	r.subMu.RLock()
	subs := make([]func(Change), len(r.subscribers))
	copy(subs, r.subscribers)
	r.subMu.RUnlock()

	for _, fn := range subs {
		fn(c)
	}
}
