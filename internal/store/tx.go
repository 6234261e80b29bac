package store

import (
	"database/sql"
	"errors"
	"time"

	"turfpoint.gg/internal/game"
)

// Tx wraps one store transaction. Methods return coded game errors for
// not-found and guard failures so callers can map them without inspecting
// SQL details.
type Tx struct {
	tx *sql.Tx
}

func (t *Tx) Game() (GameRow, error) {
	var g GameRow
	row := t.tx.QueryRow(`SELECT tick, state FROM game WHERE id = 1`)
	if err := row.Scan(&g.Tick, &g.State); err != nil {
		return g, err
	}
	return g, nil
}

func (t *Tx) SetGameState(state string) error {
	_, err := t.tx.Exec(`UPDATE game SET state = ? WHERE id = 1`, state)
	return err
}

// AdvanceTick moves the global counter from exactly `from` to from+1. A
// concurrent advance makes this a zero-row update, surfaced as CONFLICT so
// the archiver transaction rolls back instead of double-applying.
func (t *Tx) AdvanceTick(from uint64) error {
	res, err := t.tx.Exec(`UPDATE game SET tick = tick + 1 WHERE id = 1 AND tick = ?`, from)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.Errorf(game.CodeConflict, "tick advanced concurrently (expected %d)", from)
	}
	return nil
}

func scanPoint(row interface{ Scan(...any) error }) (game.Point, error) {
	var (
		p        game.Point
		acquired sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.Health, &p.MaxHealth, &p.Level, &acquired); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, game.Errorf(game.CodeNotFound, "point not found")
		}
		return p, err
	}
	p.AcquiredBy = acquired.String
	return p, nil
}

func (t *Tx) Point(id string) (game.Point, error) {
	row := t.tx.QueryRow(`SELECT id, name, health, max_health, level, acquired_by FROM point WHERE id = ?`, id)
	return scanPoint(row)
}

func (t *Tx) Points() ([]game.Point, error) {
	rows, err := t.tx.Query(`SELECT id, name, health, max_health, level, acquired_by FROM point ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []game.Point
	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// UpdatePointGuarded writes p only if the row still holds the health and
// ownership the caller read. Zero rows means another writer got there first;
// the caller re-reads and retries.
func (t *Tx) UpdatePointGuarded(p game.Point, prevHealth int, prevAcquiredBy string) error {
	res, err := t.tx.Exec(`
		UPDATE point
		SET health = ?, max_health = ?, level = ?, acquired_by = ?
		WHERE id = ? AND health = ? AND acquired_by IS ?`,
		p.Health, p.MaxHealth, p.Level, nullable(p.AcquiredBy),
		p.ID, prevHealth, nullable(prevAcquiredBy),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.Errorf(game.CodeConflict, "point %s changed concurrently", p.ID)
	}
	return nil
}

func (t *Tx) InsertPoint(p game.Point, at time.Time) error {
	_, err := t.tx.Exec(`
		INSERT INTO point (id, name, health, max_health, level, acquired_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Health, p.MaxHealth, p.Level, nullable(p.AcquiredBy), fmtTime(at),
	)
	return err
}

func (t *Tx) InsertFaction(f Faction, at time.Time) error {
	_, err := t.tx.Exec(`INSERT INTO faction (id, name, created_at) VALUES (?, ?, ?)`, f.ID, f.Name, fmtTime(at))
	return err
}

func (t *Tx) InsertUser(u User, token string) error {
	_, err := t.tx.Exec(`INSERT INTO users (id, name, token, role) VALUES (?, ?, ?, ?)`, u.ID, u.Name, token, u.Role)
	return err
}

func (t *Tx) InsertUserGameData(d UserGameData) error {
	var last any
	if d.LastAction != nil {
		last = fmtTime(*d.LastAction)
	}
	_, err := t.tx.Exec(`
		INSERT INTO user_game_data (user_id, faction_id, last_action, experience, action_points)
		VALUES (?, ?, ?, ?, ?)`,
		d.UserID, d.FactionID, last, d.Experience, d.ActionPoints,
	)
	return err
}

func (t *Tx) UserGameData(userID string) (UserGameData, error) {
	var (
		d    UserGameData
		last sql.NullString
	)
	row := t.tx.QueryRow(`
		SELECT user_id, faction_id, last_action, experience, action_points
		FROM user_game_data WHERE user_id = ?`, userID)
	if err := row.Scan(&d.UserID, &d.FactionID, &last, &d.Experience, &d.ActionPoints); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return d, game.Errorf(game.CodeAuthError, "user %s has no game data", userID)
		}
		return d, err
	}
	if last.Valid {
		ts, err := parseTime(last.String)
		if err != nil {
			return d, err
		}
		d.LastAction = &ts
	}
	return d, nil
}

// SetLastAction keeps the per-user timestamp monotonic: a stale write (from a
// duplicate rapid submission) becomes a guard failure instead of moving the
// clock backwards.
func (t *Tx) SetLastAction(userID string, at time.Time) error {
	ts := fmtTime(at)
	res, err := t.tx.Exec(`
		UPDATE user_game_data SET last_action = ?
		WHERE user_id = ? AND (last_action IS NULL OR last_action <= ?)`,
		ts, userID, ts,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.Errorf(game.CodeConflict, "last_action for user %s moved forward concurrently", userID)
	}
	return nil
}

func (t *Tx) AddExperience(userID string, amount int) error {
	_, err := t.tx.Exec(`UPDATE user_game_data SET experience = experience + ? WHERE user_id = ?`, amount, userID)
	return err
}

// SpendActionPoints deducts cost, failing when the balance is short.
func (t *Tx) SpendActionPoints(userID string, cost int) error {
	res, err := t.tx.Exec(`
		UPDATE user_game_data SET action_points = action_points - ?
		WHERE user_id = ? AND action_points >= ?`,
		cost, userID, cost,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.Errorf(game.CodeInvalidInput, "not enough action points (need %d)", cost)
	}
	return nil
}

func (t *Tx) InsertPuzzle(p Puzzle, result []byte) error {
	_, err := t.tx.Exec(`
		INSERT INTO puzzle (id, user_id, type, task, solved, timeout, consumed, created_at, expires_at)
		VALUES (?, ?, ?, ?, 0, 0, 0, ?, ?)`,
		p.ID, p.UserID, p.Type, string(p.Task), fmtTime(p.CreatedAt), fmtTime(p.ExpiresAt),
	)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(`
		INSERT INTO puzzle_result (id, user_id, result, created_at)
		VALUES (?, ?, ?, ?)`,
		p.ID, p.UserID, string(result), fmtTime(p.CreatedAt),
	)
	return err
}

func (t *Tx) Puzzle(id string) (Puzzle, error) {
	var (
		p                Puzzle
		task             string
		created, expires string
		solved, timeout  int
		consumed         int
	)
	row := t.tx.QueryRow(`
		SELECT id, user_id, type, task, solved, timeout, consumed, created_at, expires_at
		FROM puzzle WHERE id = ?`, id)
	if err := row.Scan(&p.ID, &p.UserID, &p.Type, &task, &solved, &timeout, &consumed, &created, &expires); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, game.Errorf(game.CodeNotFound, "puzzle not found")
		}
		return p, err
	}
	p.Task = []byte(task)
	p.Solved = solved != 0
	p.Timeout = timeout != 0
	p.Consumed = consumed != 0
	var err error
	if p.CreatedAt, err = parseTime(created); err != nil {
		return p, err
	}
	if p.ExpiresAt, err = parseTime(expires); err != nil {
		return p, err
	}
	return p, nil
}

// ExpectedResult is the server-held secret; it never leaves the store layer
// except to the validation path.
func (t *Tx) ExpectedResult(puzzleID string) ([]byte, error) {
	var result string
	row := t.tx.QueryRow(`SELECT result FROM puzzle_result WHERE id = ?`, puzzleID)
	if err := row.Scan(&result); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.Errorf(game.CodeNotFound, "puzzle result not found")
		}
		return nil, err
	}
	return []byte(result), nil
}

// MarkPuzzleSolved flips solved exactly once.
func (t *Tx) MarkPuzzleSolved(id string) error {
	res, err := t.tx.Exec(`UPDATE puzzle SET solved = 1 WHERE id = ? AND solved = 0 AND timeout = 0`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.Errorf(game.CodeConflict, "puzzle %s already solved or timed out", id)
	}
	return nil
}

func (t *Tx) MarkPuzzleTimeout(id string) error {
	_, err := t.tx.Exec(`UPDATE puzzle SET timeout = 1 WHERE id = ?`, id)
	return err
}

// ConsumePuzzle spends a solved puzzle as a capability token; each puzzle
// authorizes at most one action.
func (t *Tx) ConsumePuzzle(id string) error {
	res, err := t.tx.Exec(`UPDATE puzzle SET consumed = 1 WHERE id = ? AND consumed = 0`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.Errorf(game.CodeAuthError, "puzzle %s already consumed", id)
	}
	return nil
}

func (t *Tx) InsertAction(rec ActionRecord) error {
	var applied any
	if rec.AppliedTick != nil {
		applied = int64(*rec.AppliedTick)
	}
	_, err := t.tx.Exec(`
		INSERT INTO actions (id, created_by, point, puzzle, type, created_at, applied_tick)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedBy, rec.Point, rec.Puzzle, string(rec.Type), fmtTime(rec.CreatedAt), applied,
	)
	return err
}

// PendingTasks returns unapplied actions joined with the actor's faction, in
// submission order.
func (t *Tx) PendingTasks() ([]Task, error) {
	rows, err := t.tx.Query(`
		SELECT a.id, a.created_by, a.point, a.puzzle, a.type, a.created_at, d.faction_id
		FROM actions a
		JOIN user_game_data d ON d.user_id = a.created_by
		WHERE a.applied_tick IS NULL
		ORDER BY a.created_at, a.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			task    Task
			typ     string
			created string
		)
		if err := rows.Scan(&task.ID, &task.CreatedBy, &task.Point, &task.Puzzle, &typ, &created, &task.FactionID); err != nil {
			return nil, err
		}
		task.Type = game.ActionType(typ)
		if task.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

func (t *Tx) MarkTaskApplied(actionID string, tick uint64) error {
	res, err := t.tx.Exec(`UPDATE actions SET applied_tick = ? WHERE id = ? AND applied_tick IS NULL`, int64(tick), actionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return game.Errorf(game.CodeConflict, "task %s applied concurrently", actionID)
	}
	return nil
}

// InsertArchiveRow appends one snapshot row. INSERT OR REPLACE keeps manual
// snapshots idempotent: re-archiving the same (point, tick) overwrites the
// identical row instead of failing.
func (t *Tx) InsertArchiveRow(r ArchiveRow) error {
	_, err := t.tx.Exec(`
		INSERT OR REPLACE INTO point_tick_archive (point_id, tick, health, acquired_by, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.PointID, int64(r.Tick), r.Health, nullable(r.AcquiredBy), fmtTime(r.CreatedAt),
	)
	return err
}

func (t *Tx) ArchiveRows(tick uint64) ([]ArchiveRow, error) {
	rows, err := t.tx.Query(`
		SELECT point_id, tick, health, acquired_by, created_at
		FROM point_tick_archive WHERE tick = ? ORDER BY point_id`, int64(tick))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchiveRow
	for rows.Next() {
		var (
			r        ArchiveRow
			acquired sql.NullString
			created  string
		)
		if err := rows.Scan(&r.PointID, &r.Tick, &r.Health, &acquired, &created); err != nil {
			return nil, err
		}
		r.AcquiredBy = acquired.String
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordPresence registers (or refreshes) a check-in at a point.
func (t *Tx) RecordPresence(pointID, userID string, at time.Time) error {
	_, err := t.tx.Exec(`
		INSERT INTO point_user (point_id, user_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (point_id, user_id) DO UPDATE SET created_at = excluded.created_at`,
		pointID, userID, fmtTime(at),
	)
	return err
}

// CountPresence counts same-faction users checked in at a point since the
// cutoff. Feeds group strength scaling.
func (t *Tx) CountPresence(pointID, factionID string, since time.Time) (int, error) {
	var n int
	row := t.tx.QueryRow(`
		SELECT COUNT(*)
		FROM point_user pu
		JOIN user_game_data d ON d.user_id = pu.user_id
		WHERE pu.point_id = ? AND d.faction_id = ? AND pu.created_at >= ?`,
		pointID, factionID, fmtTime(since),
	)
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
