package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/arena/internal/game/player"
)

const playerColumns = `id, username, rating, wins, losses, draws, current_streak, best_streak, online, created_at`

// PlayerRepository provides player persistence operations.
type PlayerRepository struct {
	db *pgxpool.Pool
}

// NewPlayerRepository creates a PlayerRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewPlayerRepository(db *pgxpool.Pool) *PlayerRepository {
	return &PlayerRepository{db: db}
}

// CreatePlayer inserts p.
//
// Precondition: p.ID and p.Username must be non-empty.
// Postcondition: Returns player.ErrUsernameTaken if the id or username is in use.
func (r *PlayerRepository) CreatePlayer(ctx context.Context, p player.Player) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO players (id, username, rating, wins, losses, draws, current_streak, best_streak)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Username, p.Rating, p.Wins, p.Losses, p.Draws, p.CurrentStreak, p.BestStreak,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return player.ErrUsernameTaken
		}
		return fmt.Errorf("inserting player: %w", err)
	}
	return nil
}

// GetPlayer retrieves a player by id.
//
// Postcondition: Returns the Player or player.ErrNotFound.
func (r *PlayerRepository) GetPlayer(ctx context.Context, id string) (player.Player, error) {
	p, err := scanPlayer(r.db.QueryRow(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return player.Player{}, player.ErrNotFound
		}
		return player.Player{}, fmt.Errorf("querying player: %w", err)
	}
	return p, nil
}

// GetPlayers returns the players among ids, sorted by username. Unknown ids are skipped.
func (r *PlayerRepository) GetPlayers(ctx context.Context, ids []string) ([]player.Player, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+playerColumns+` FROM players WHERE id = ANY($1) ORDER BY username`, ids)
	if err != nil {
		return nil, fmt.Errorf("querying players: %w", err)
	}
	defer rows.Close()

	var out []player.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning player: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating players: %w", err)
	}
	return out, nil
}

// SetOnline mirrors presence onto the player row.
//
// Postcondition: Returns player.ErrNotFound if no row has id.
func (r *PlayerRepository) SetOnline(ctx context.Context, id string, online bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE players SET online = $2 WHERE id = $1`, id, online)
	if err != nil {
		return fmt.Errorf("updating presence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return player.ErrNotFound
	}
	return nil
}

// ResetPresence marks every player offline.
func (r *PlayerRepository) ResetPresence(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `UPDATE players SET online = FALSE WHERE online`); err != nil {
		return fmt.Errorf("resetting presence: %w", err)
	}
	return nil
}

func scanPlayer(row pgx.Row) (player.Player, error) {
	var p player.Player
	err := row.Scan(&p.ID, &p.Username, &p.Rating, &p.Wins, &p.Losses, &p.Draws,
		&p.CurrentStreak, &p.BestStreak, &p.Online, &p.CreatedAt)
	return p, err
}

func updatePlayerRecord(ctx context.Context, tx pgx.Tx, p player.Player) error {
	tag, err := tx.Exec(ctx,
		`UPDATE players
		 SET rating = $2, wins = $3, losses = $4, draws = $5, current_streak = $6, best_streak = $7
		 WHERE id = $1`,
		p.ID, p.Rating, p.Wins, p.Losses, p.Draws, p.CurrentStreak, p.BestStreak,
	)
	if err != nil {
		return fmt.Errorf("updating player %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return player.ErrNotFound
	}
	return nil
}
