package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/arena/internal/game/invite"
)

// InviteRepository persists invites.
type InviteRepository struct {
	db *pgxpool.Pool
}

// NewInviteRepository creates an InviteRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewInviteRepository(db *pgxpool.Pool) *InviteRepository {
	return &InviteRepository{db: db}
}

// CreateInvite inserts inv.
func (r *InviteRepository) CreateInvite(ctx context.Context, inv invite.Invite) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO invites (id, sender_id, receiver_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		inv.ID, inv.SenderID, inv.ReceiverID, string(inv.Status), inv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting invite: %w", err)
	}
	return nil
}

// GetInvite retrieves an invite by id.
//
// Postcondition: Returns the Invite or invite.ErrInviteNotFound.
func (r *InviteRepository) GetInvite(ctx context.Context, id string) (invite.Invite, error) {
	inv, err := scanInvite(r.db.QueryRow(ctx,
		`SELECT id, sender_id, receiver_id, status, created_at FROM invites WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return invite.Invite{}, invite.ErrInviteNotFound
		}
		return invite.Invite{}, fmt.Errorf("querying invite: %w", err)
	}
	return inv, nil
}

// TransitionInvite moves an invite from one status to another in a single
// conditional update.
//
// Postcondition: Returns invite.ErrInviteNotFound if the row is missing, or
// invite.ErrInviteNotPending if its status was not from.
func (r *InviteRepository) TransitionInvite(ctx context.Context, id string, from, to invite.Status) (invite.Invite, error) {
	inv, err := scanInvite(r.db.QueryRow(ctx,
		`UPDATE invites SET status = $3
		 WHERE id = $1 AND status = $2
		 RETURNING id, sender_id, receiver_id, status, created_at`,
		id, string(from), string(to)))
	if err == nil {
		return inv, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return invite.Invite{}, fmt.Errorf("updating invite: %w", err)
	}
	if _, err := r.GetInvite(ctx, id); err != nil {
		return invite.Invite{}, err
	}
	return invite.Invite{}, invite.ErrInviteNotPending
}

func scanInvite(row pgx.Row) (invite.Invite, error) {
	var (
		inv    invite.Invite
		status string
	)
	if err := row.Scan(&inv.ID, &inv.SenderID, &inv.ReceiverID, &status, &inv.CreatedAt); err != nil {
		return invite.Invite{}, err
	}
	inv.Status = invite.Status(status)
	return inv, nil
}
