package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"turfpoint.gg/internal/game"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "game.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTestData(t *testing.T, s *Store) SeedData {
	t.Helper()
	data := SeedData{
		Factions: []string{"red", "blue"},
		Points:   []string{"Fountain", "Old Mill"},
		Users: []SeedUser{
			{Name: "ada", Token: "tok-ada", Faction: 0, ActionPoints: 5},
			{Name: "bob", Token: "tok-bob", Faction: 1},
			{Name: "ops", Token: "tok-ops", Role: "admin", Faction: 0},
		},
	}
	if err := s.Seed(context.Background(), data); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return data
}

func TestOpen_InitialGameRow(t *testing.T) {
	s := openTestStore(t)

	g, err := s.Game(context.Background())
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if g.Tick != 0 || g.State != StatePlaying {
		t.Fatalf("fresh game row = %+v, want tick 0 playing", g)
	}
}

func TestSeed_And_UserByToken(t *testing.T) {
	s := openTestStore(t)
	seedTestData(t, s)
	ctx := context.Background()

	u, err := s.UserByToken(ctx, "tok-ada")
	if err != nil {
		t.Fatalf("UserByToken: %v", err)
	}
	if u.Name != "ada" || u.Role != "player" {
		t.Fatalf("user = %+v", u)
	}

	if _, err := s.UserByToken(ctx, "nope"); game.CodeOf(err) != game.CodeAuthError {
		t.Fatalf("unknown token: %v, want AUTH_ERROR", err)
	}

	points, err := s.Points(ctx)
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("got %d points, want 2", len(points))
	}
	for _, p := range points {
		if !p.Neutral() || p.Health != 255 || p.Level != 1 {
			t.Fatalf("seeded point not neutral/full: %+v", p)
		}
	}
}

func TestUpdatePointGuarded_Conflict(t *testing.T) {
	s := openTestStore(t)
	seedTestData(t, s)
	ctx := context.Background()

	var p game.Point
	if err := s.Tx(ctx, func(tx *Tx) error {
		points, err := tx.Points()
		if err != nil {
			return err
		}
		p = points[0]
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}

	// First writer wins.
	next := p
	next.Health = 250
	if err := s.Tx(ctx, func(tx *Tx) error {
		return tx.UpdatePointGuarded(next, p.Health, p.AcquiredBy)
	}); err != nil {
		t.Fatalf("first guarded update: %v", err)
	}

	// Second writer still holds the stale snapshot and must conflict.
	stale := p
	stale.Health = 245
	err := s.Tx(ctx, func(tx *Tx) error {
		return tx.UpdatePointGuarded(stale, p.Health, p.AcquiredBy)
	})
	if game.CodeOf(err) != game.CodeConflict {
		t.Fatalf("stale guarded update: %v, want CONFLICT", err)
	}

	// The surviving value is the first write, not the stale one.
	got, err := s.Points(ctx)
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	for _, q := range got {
		if q.ID == p.ID && q.Health != 250 {
			t.Fatalf("health=%d, want 250", q.Health)
		}
	}
}

func TestUpdatePointGuarded_OwnershipGuard(t *testing.T) {
	s := openTestStore(t)
	seedTestData(t, s)
	ctx := context.Background()

	factions, err := s.Factions(ctx)
	if err != nil {
		t.Fatalf("Factions: %v", err)
	}

	var p game.Point
	if err := s.Tx(ctx, func(tx *Tx) error {
		points, err := tx.Points()
		if err != nil {
			return err
		}
		p = points[0]
		p.AcquiredBy = factions[0].ID
		return tx.UpdatePointGuarded(p, p.Health, "")
	}); err != nil {
		t.Fatalf("claim write: %v", err)
	}

	// A writer that read the point as neutral must now conflict.
	err = s.Tx(ctx, func(tx *Tx) error {
		q := p
		q.AcquiredBy = factions[1].ID
		return tx.UpdatePointGuarded(q, p.Health, "")
	})
	if game.CodeOf(err) != game.CodeConflict {
		t.Fatalf("ownership guard: %v, want CONFLICT", err)
	}
}

func TestPuzzleLifecycle(t *testing.T) {
	s := openTestStore(t)
	seedTestData(t, s)
	ctx := context.Background()

	u, err := s.UserByToken(ctx, "tok-ada")
	if err != nil {
		t.Fatalf("UserByToken: %v", err)
	}

	now := time.Now()
	puz := Puzzle{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Type:      "math",
		Task:      json.RawMessage(`{"leftHandle":1,"rightHandle":2,"operator":"+"}`),
		CreatedAt: now,
		ExpiresAt: now.Add(10 * time.Second),
	}

	if err := s.Tx(ctx, func(tx *Tx) error {
		return tx.InsertPuzzle(puz, []byte(`3`))
	}); err != nil {
		t.Fatalf("InsertPuzzle: %v", err)
	}

	if err := s.Tx(ctx, func(tx *Tx) error {
		got, err := tx.Puzzle(puz.ID)
		if err != nil {
			return err
		}
		if got.Solved || got.Timeout || got.Consumed {
			t.Fatalf("fresh puzzle flags: %+v", got)
		}
		res, err := tx.ExpectedResult(puz.ID)
		if err != nil {
			return err
		}
		if string(res) != `3` {
			t.Fatalf("expected result %q", res)
		}
		return tx.MarkPuzzleSolved(puz.ID)
	}); err != nil {
		t.Fatalf("solve: %v", err)
	}

	// Solved transitions exactly once.
	err = s.Tx(ctx, func(tx *Tx) error { return tx.MarkPuzzleSolved(puz.ID) })
	if game.CodeOf(err) != game.CodeConflict {
		t.Fatalf("double solve: %v, want CONFLICT", err)
	}

	// Consumption is one-shot too.
	if err := s.Tx(ctx, func(tx *Tx) error { return tx.ConsumePuzzle(puz.ID) }); err != nil {
		t.Fatalf("consume: %v", err)
	}
	err = s.Tx(ctx, func(tx *Tx) error { return tx.ConsumePuzzle(puz.ID) })
	if game.CodeOf(err) != game.CodeAuthError {
		t.Fatalf("double consume: %v, want AUTH_ERROR", err)
	}
}

func TestSetLastAction_Monotonic(t *testing.T) {
	s := openTestStore(t)
	seedTestData(t, s)
	ctx := context.Background()

	u, err := s.UserByToken(ctx, "tok-ada")
	if err != nil {
		t.Fatalf("UserByToken: %v", err)
	}

	now := time.Now()
	if err := s.Tx(ctx, func(tx *Tx) error { return tx.SetLastAction(u.ID, now) }); err != nil {
		t.Fatalf("SetLastAction: %v", err)
	}

	// An earlier timestamp must not move the clock backwards.
	err = s.Tx(ctx, func(tx *Tx) error { return tx.SetLastAction(u.ID, now.Add(-time.Minute)) })
	if game.CodeOf(err) != game.CodeConflict {
		t.Fatalf("stale SetLastAction: %v, want CONFLICT", err)
	}

	if err := s.Tx(ctx, func(tx *Tx) error {
		d, err := tx.UserGameData(u.ID)
		if err != nil {
			return err
		}
		if d.LastAction == nil || !d.LastAction.Equal(now) {
			t.Fatalf("last action = %v, want %v", d.LastAction, now)
		}
		return nil
	}); err != nil {
		t.Fatalf("read back: %v", err)
	}
}

func TestAdvanceTick_Guard(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Tx(ctx, func(tx *Tx) error { return tx.AdvanceTick(0) }); err != nil {
		t.Fatalf("AdvanceTick: %v", err)
	}
	err := s.Tx(ctx, func(tx *Tx) error { return tx.AdvanceTick(0) })
	if game.CodeOf(err) != game.CodeConflict {
		t.Fatalf("repeated AdvanceTick(0): %v, want CONFLICT", err)
	}

	g, err := s.Game(ctx)
	if err != nil {
		t.Fatalf("Game: %v", err)
	}
	if g.Tick != 1 {
		t.Fatalf("tick=%d, want 1", g.Tick)
	}
}

func TestArchiveRows_Idempotent(t *testing.T) {
	s := openTestStore(t)
	seedTestData(t, s)
	ctx := context.Background()

	points, err := s.Points(ctx)
	if err != nil {
		t.Fatalf("Points: %v", err)
	}

	write := func() {
		if err := s.Tx(ctx, func(tx *Tx) error {
			for _, p := range points {
				if err := tx.InsertArchiveRow(ArchiveRow{
					PointID:   p.ID,
					Tick:      3,
					Health:    p.Health,
					CreatedAt: time.Now(),
				}); err != nil {
					return err
				}
			}
			return nil
		}); err != nil {
			t.Fatalf("archive: %v", err)
		}
	}
	write()
	write() // re-run must not duplicate rows

	if err := s.Tx(ctx, func(tx *Tx) error {
		rows, err := tx.ArchiveRows(3)
		if err != nil {
			return err
		}
		if len(rows) != len(points) {
			t.Fatalf("got %d archive rows, want %d", len(rows), len(points))
		}
		return nil
	}); err != nil {
		t.Fatalf("read archive: %v", err)
	}
}

func TestPresence(t *testing.T) {
	s := openTestStore(t)
	seedTestData(t, s)
	ctx := context.Background()

	ada, _ := s.UserByToken(ctx, "tok-ada")
	ops, _ := s.UserByToken(ctx, "tok-ops")
	bob, _ := s.UserByToken(ctx, "tok-bob")

	points, err := s.Points(ctx)
	if err != nil {
		t.Fatalf("Points: %v", err)
	}
	pointID := points[0].ID

	var redFaction string
	if err := s.Tx(ctx, func(tx *Tx) error {
		d, err := tx.UserGameData(ada.ID)
		if err != nil {
			return err
		}
		redFaction = d.FactionID
		now := time.Now()
		if err := tx.RecordPresence(pointID, ada.ID, now); err != nil {
			return err
		}
		if err := tx.RecordPresence(pointID, ops.ID, now); err != nil {
			return err
		}
		// Stale check-in from the other faction's player.
		return tx.RecordPresence(pointID, bob.ID, now.Add(-time.Hour))
	}); err != nil {
		t.Fatalf("record: %v", err)
	}

	if err := s.Tx(ctx, func(tx *Tx) error {
		n, err := tx.CountPresence(pointID, redFaction, time.Now().Add(-5*time.Minute))
		if err != nil {
			return err
		}
		if n != 2 {
			t.Fatalf("red presence=%d, want 2", n)
		}
		return nil
	}); err != nil {
		t.Fatalf("count: %v", err)
	}
}
