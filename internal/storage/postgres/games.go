package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/arena/internal/game/board"
	"github.com/cory-johannsen/arena/internal/game/match"
	"github.com/cory-johannsen/arena/internal/game/player"
	"github.com/cory-johannsen/arena/internal/game/rating"
	"github.com/cory-johannsen/arena/internal/game/standings"
)

const gameColumns = `id, player1_id, player2_id, board, current_turn, status, winner_id,
	move_time_limit_ms, created_at, last_move_at`

// GameRepository persists sessions and match records.
type GameRepository struct {
	db *pgxpool.Pool
}

// NewGameRepository creates a GameRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewGameRepository(db *pgxpool.Pool) *GameRepository {
	return &GameRepository{db: db}
}

// CreateGame inserts a new session.
func (r *GameRepository) CreateGame(ctx context.Context, g match.Session) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO games (id, player1_id, player2_id, board, current_turn, status, winner_id,
		                    move_time_limit_ms, created_at, last_move_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		g.ID, g.Player1ID, g.Player2ID, g.Board.String(), g.CurrentTurn, string(g.Status),
		nullable(g.WinnerID), g.MoveTimeLimit.Milliseconds(), g.CreatedAt, g.LastMoveAt,
	)
	if err != nil {
		return fmt.Errorf("inserting game: %w", err)
	}
	return nil
}

// SaveGame overwrites the mutable columns of a session.
//
// Postcondition: Returns match.ErrSessionNotFound if no row has g.ID.
func (r *GameRepository) SaveGame(ctx context.Context, g match.Session) error {
	return saveGame(ctx, r.db, g)
}

// GetGame retrieves a session by id.
//
// Postcondition: Returns the Session or match.ErrSessionNotFound.
func (r *GameRepository) GetGame(ctx context.Context, id string) (match.Session, error) {
	g, err := scanGame(r.db.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return match.Session{}, match.ErrSessionNotFound
		}
		return match.Session{}, fmt.Errorf("querying game: %w", err)
	}
	return g, nil
}

// ListActiveGames returns every IN_PROGRESS session, oldest first.
func (r *GameRepository) ListActiveGames(ctx context.Context) ([]match.Session, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+gameColumns+` FROM games WHERE status = 'IN_PROGRESS' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("querying active games: %w", err)
	}
	defer rows.Close()

	var out []match.Session
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning game: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating games: %w", err)
	}
	return out, nil
}

// SettleMatch locks both participants, applies the settlement, and writes
// the completed game, both players, and the match record in one transaction.
//
// Postcondition: Either everything is committed or nothing is.
func (r *GameRepository) SettleMatch(ctx context.Context, g match.Session, apply standings.ApplyFunc) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+playerColumns+` FROM players WHERE id = ANY($1) ORDER BY id FOR UPDATE`,
			[]string{g.Player1ID, g.Player2ID})
		if err != nil {
			return fmt.Errorf("locking players: %w", err)
		}
		locked := make(map[string]player.Player, 2)
		for rows.Next() {
			p, err := scanPlayer(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scanning player: %w", err)
			}
			locked[p.ID] = p
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating players: %w", err)
		}
		p1, ok1 := locked[g.Player1ID]
		p2, ok2 := locked[g.Player2ID]
		if !ok1 || !ok2 {
			return player.ErrNotFound
		}

		n1, n2, rec, err := apply(p1, p2)
		if err != nil {
			return err
		}
		if err := saveGame(ctx, tx, g); err != nil {
			return err
		}
		if err := updatePlayerRecord(ctx, tx, n1); err != nil {
			return err
		}
		if err := updatePlayerRecord(ctx, tx, n2); err != nil {
			return err
		}
		return insertRecord(ctx, tx, rec)
	})
}

// Records returns the match records involving playerID, newest first.
func (r *GameRepository) Records(ctx context.Context, playerID string) ([]match.Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, game_id, player1_id, player2_id, winner_id, result, reason, final_board,
		        moves_count, duration_ms, player1_rating_change, player2_rating_change, created_at
		 FROM match_records
		 WHERE player1_id = $1 OR player2_id = $1
		 ORDER BY created_at DESC`, playerID)
	if err != nil {
		return nil, fmt.Errorf("querying match records: %w", err)
	}
	defer rows.Close()

	var out []match.Record
	for rows.Next() {
		var (
			rec      match.Record
			winner   *string
			result   string
			reason   string
			final    string
			duration int64
		)
		if err := rows.Scan(&rec.ID, &rec.GameID, &rec.Player1ID, &rec.Player2ID, &winner, &result,
			&reason, &final, &rec.MovesCount, &duration, &rec.Player1Change, &rec.Player2Change,
			&rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning match record: %w", err)
		}
		if rec.Result, err = rating.ParseResult(result); err != nil {
			return nil, err
		}
		if rec.FinalBoard, err = board.Parse(final); err != nil {
			return nil, fmt.Errorf("match record %s: %w", rec.ID, err)
		}
		if winner != nil {
			rec.WinnerID = *winner
		}
		rec.Reason = match.Reason(reason)
		rec.Duration = time.Duration(duration) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating match records: %w", err)
	}
	return out, nil
}

type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func saveGame(ctx context.Context, db dbtx, g match.Session) error {
	tag, err := db.Exec(ctx,
		`UPDATE games
		 SET board = $2, current_turn = $3, status = $4, winner_id = $5, last_move_at = $6
		 WHERE id = $1`,
		g.ID, g.Board.String(), g.CurrentTurn, string(g.Status), nullable(g.WinnerID), g.LastMoveAt,
	)
	if err != nil {
		return fmt.Errorf("updating game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return match.ErrSessionNotFound
	}
	return nil
}

func insertRecord(ctx context.Context, tx pgx.Tx, rec match.Record) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO match_records (id, game_id, player1_id, player2_id, winner_id, result, reason,
		                            final_board, moves_count, duration_ms,
		                            player1_rating_change, player2_rating_change, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.GameID, rec.Player1ID, rec.Player2ID, nullable(rec.WinnerID), rec.Result.String(),
		string(rec.Reason), rec.FinalBoard.String(), rec.MovesCount, rec.Duration.Milliseconds(),
		rec.Player1Change, rec.Player2Change, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting match record: %w", err)
	}
	return nil
}

func scanGame(row pgx.Row) (match.Session, error) {
	var (
		g       match.Session
		cells   string
		status  string
		winner  *string
		limitMs int64
	)
	if err := row.Scan(&g.ID, &g.Player1ID, &g.Player2ID, &cells, &g.CurrentTurn, &status, &winner,
		&limitMs, &g.CreatedAt, &g.LastMoveAt); err != nil {
		return match.Session{}, err
	}
	b, err := board.Parse(cells)
	if err != nil {
		return match.Session{}, fmt.Errorf("game %s: %w", g.ID, err)
	}
	g.Board = b
	g.Status = match.Status(status)
	if winner != nil {
		g.WinnerID = *winner
	}
	g.MoveTimeLimit = time.Duration(limitMs) * time.Millisecond
	return g, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
