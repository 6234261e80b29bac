package store

import (
	"context"
	"database/sql"
	"errors"

	"turfpoint.gg/internal/game"
)

// Read-only helpers for paths outside the pipeline transaction (auth
// middleware, metrics, admin state).

func (s *Store) UserByToken(ctx context.Context, token string) (User, error) {
	var u User
	row := s.db.QueryRowContext(ctx, `SELECT id, name, role FROM users WHERE token = ?`, token)
	if err := row.Scan(&u.ID, &u.Name, &u.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return u, game.Errorf(game.CodeAuthError, "unknown bearer token")
		}
		return u, err
	}
	return u, nil
}

func (s *Store) Game(ctx context.Context) (GameRow, error) {
	var g GameRow
	row := s.db.QueryRowContext(ctx, `SELECT tick, state FROM game WHERE id = 1`)
	if err := row.Scan(&g.Tick, &g.State); err != nil {
		return g, err
	}
	return g, nil
}

func (s *Store) Points(ctx context.Context) ([]game.Point, error) {
	var points []game.Point
	err := s.Tx(ctx, func(tx *Tx) error {
		var err error
		points, err = tx.Points()
		return err
	})
	return points, err
}

func (s *Store) Factions(ctx context.Context) ([]Faction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM faction ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Faction
	for rows.Next() {
		var f Faction
		if err := rows.Scan(&f.ID, &f.Name); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) CountActions(ctx context.Context) (total, pending int, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE applied_tick IS NULL) FROM actions`)
	if err := row.Scan(&total, &pending); err != nil {
		return 0, 0, err
	}
	return total, pending, nil
}
