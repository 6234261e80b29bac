// Package engine orchestrates the action pipeline: puzzle issuance and
// solving, capability/cooldown gating and the guarded point mutation. Each
// request runs in one store transaction; nothing is held in process memory
// between requests.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"turfpoint.gg/internal/game"
	persistlog "turfpoint.gg/internal/persistence/log"
	"turfpoint.gg/internal/puzzle"
	"turfpoint.gg/internal/store"
	"turfpoint.gg/internal/tuning"
)

// EventSink receives domain events after successful mutations. Delivery is an
// external concern (see the observer transport); the engine only emits.
type EventSink interface {
	PointChanged(pointID string)
}

type NopSink struct{}

func (NopSink) PointChanged(string) {}

// applyRetries bounds the optimistic-concurrency retry loop on point writes.
const applyRetries = 3

// AuditLog receives one entry per accepted action. Writes are best effort;
// an audit failure never rolls back the action.
type AuditLog interface {
	WriteAudit(persistlog.AuditLogEntry) error
}

type Engine struct {
	store *store.Store
	tune  tuning.Tuning
	log   *log.Logger
	sink  EventSink
	audit AuditLog

	mu  sync.Mutex
	rng *rand.Rand

	now func() time.Time
}

func New(st *store.Store, tune tuning.Tuning, logger *log.Logger, sink EventSink) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		store: st,
		tune:  tune,
		log:   logger,
		sink:  sink,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

// SetAuditLog attaches an audit sink; call before serving traffic.
func (e *Engine) SetAuditLog(a AuditLog) { e.audit = a }

type IssuedPuzzle struct {
	PuzzleID  string          `json:"puzzleId"`
	Type      puzzle.Type     `json:"type"`
	Task      json.RawMessage `json:"task"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

// IssuePuzzle generates a fresh puzzle for the caller and persists the
// task/result pair. The expected result never leaves the store.
func (e *Engine) IssuePuzzle(ctx context.Context, userID string) (IssuedPuzzle, error) {
	e.mu.Lock()
	typ := puzzle.RandomType(e.rng)
	gen, err := puzzle.ForType(typ, puzzle.Difficulty(e.tune.LightsOffDifficulty))
	if err != nil {
		e.mu.Unlock()
		return IssuedPuzzle{}, err
	}
	task, result, err := gen.Generate(e.rng)
	e.mu.Unlock()
	if err != nil {
		return IssuedPuzzle{}, err
	}

	now := e.now()
	p := store.Puzzle{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      string(typ),
		Task:      task,
		CreatedAt: now,
		ExpiresAt: now.Add(e.tune.TimeoutFor(string(typ))),
	}
	if err := e.store.Tx(ctx, func(tx *store.Tx) error {
		return tx.InsertPuzzle(p, result)
	}); err != nil {
		return IssuedPuzzle{}, err
	}

	e.log.Printf("issued %s puzzle %s for user %s", typ, p.ID, userID)
	return IssuedPuzzle{PuzzleID: p.ID, Type: typ, Task: task, ExpiresAt: p.ExpiresAt}, nil
}

// SolvePuzzle validates a submitted result and marks the puzzle solved.
// Expiry wins over correctness: a late right answer is still PUZZLE_TIMEOUT.
func (e *Engine) SolvePuzzle(ctx context.Context, userID, puzzleID string, submitted json.RawMessage) error {
	if !game.IsUUID4(puzzleID) {
		return game.Errorf(game.CodeInvalidInput, "puzzleId is not a valid uuid4")
	}
	if len(submitted) == 0 {
		return game.Errorf(game.CodeInvalidInput, "missing result")
	}

	// The timeout mark must commit even though the caller gets an error, so
	// expiry is signalled through a flag instead of failing the transaction.
	var timedOut bool
	err := e.store.Tx(ctx, func(tx *store.Tx) error {
		p, err := tx.Puzzle(puzzleID)
		if err != nil {
			return err
		}
		if p.UserID != userID {
			// Do not leak other users' puzzle ids.
			return game.Errorf(game.CodeNotFound, "puzzle not found")
		}
		if p.Solved {
			return game.Errorf(game.CodeInvalidInput, "puzzle already solved")
		}
		if p.Timeout || p.Expired(e.now()) {
			timedOut = true
			if p.Timeout {
				return nil
			}
			return tx.MarkPuzzleTimeout(p.ID)
		}

		gen, err := puzzle.ForType(puzzle.Type(p.Type), puzzle.Difficulty(e.tune.LightsOffDifficulty))
		if err != nil {
			return err
		}
		ok, err := gen.IsValid(p.Task, submitted)
		if err != nil {
			return game.Errorf(game.CodeInvalidInput, "malformed result: %v", err)
		}
		if !ok {
			return game.Errorf(game.CodePuzzleInvalidResult, "the results are not equal, please try again")
		}
		return tx.MarkPuzzleSolved(p.ID)
	})
	if err != nil {
		return err
	}
	if timedOut {
		return game.Errorf(game.CodePuzzleTimeout, "the time to solve the puzzle is up, request a new one")
	}
	return nil
}

// PerformAction runs the gated pipeline for one action and returns the
// resulting point state. Guard failures on the point write retry the whole
// read-apply-write transaction a bounded number of times.
func (e *Engine) PerformAction(ctx context.Context, userID string, req game.ActionRequest) (game.Point, error) {
	if err := req.Validate(); err != nil {
		return game.Point{}, err
	}
	actionType, err := game.ParseActionType(req.Type)
	if err != nil {
		return game.Point{}, err
	}

	var (
		updated game.Point
		lastErr error
	)
	for attempt := 0; attempt < applyRetries; attempt++ {
		updated, lastErr = e.performOnce(ctx, userID, req, actionType)
		if lastErr == nil {
			break
		}
		var ge *game.Error
		if !errors.As(lastErr, &ge) || ge.Code != game.CodeConflict {
			return game.Point{}, lastErr
		}
		e.log.Printf("action on point %s conflicted (attempt %d), retrying", req.Point, attempt+1)
	}
	if lastErr != nil {
		return game.Point{}, lastErr
	}

	if e.tune.Mode == tuning.ModeLive {
		e.sink.PointChanged(req.Point)
	}
	return updated, nil
}

func (e *Engine) performOnce(ctx context.Context, userID string, req game.ActionRequest, actionType game.ActionType) (game.Point, error) {
	now := e.now()
	var (
		updated game.Point
		rec     store.ActionRecord
		tickNo  uint64
	)

	err := e.store.Tx(ctx, func(tx *store.Tx) error {
		data, err := tx.UserGameData(userID)
		if err != nil {
			return err
		}

		// Cooldown gate.
		if data.LastAction != nil {
			if elapsed := now.Sub(*data.LastAction); elapsed < e.tune.Cooldown() {
				return game.Throttled(e.tune.Cooldown() - elapsed)
			}
		}

		// Capability gate: a solved, unexpired, unconsumed puzzle owned
		// by the actor.
		puz, err := tx.Puzzle(req.PuzzleID)
		if err != nil {
			if game.CodeOf(err) == game.CodeNotFound {
				return game.Errorf(game.CodeAuthError, "puzzle not found")
			}
			return err
		}
		if puz.UserID != userID {
			return game.Errorf(game.CodeAuthError, "puzzle belongs to another user")
		}
		if !puz.Solved {
			return game.Errorf(game.CodeAuthError, "puzzle is not solved")
		}
		if puz.Consumed {
			return game.Errorf(game.CodeAuthError, "puzzle already used")
		}
		if puz.Timeout || puz.Expired(now) {
			return game.Errorf(game.CodePuzzleTimeout, "puzzle expired, request a new one")
		}

		p, err := tx.Point(req.Point)
		if err != nil {
			return err
		}

		eff, err := e.effects(tx, p, data, now)
		if err != nil {
			return err
		}

		// Authorization is embedded in the transition table; a dry run
		// in tick mode rejects doomed tasks at submission time.
		next, err := game.Apply(p, actionType, data.FactionID, eff)
		if err != nil {
			return err
		}

		if actionType == game.ActionUpgrade {
			if err := tx.SpendActionPoints(userID, e.tune.UpgradeCostActionPoints); err != nil {
				return err
			}
		}

		gameRow, err := tx.Game()
		if err != nil {
			return err
		}

		tickNo = gameRow.Tick
		rec = store.ActionRecord{
			ID:        uuid.NewString(),
			CreatedBy: userID,
			Point:     req.Point,
			Puzzle:    req.PuzzleID,
			Type:      actionType,
			CreatedAt: now,
		}
		if e.tune.Mode == tuning.ModeLive {
			tick := gameRow.Tick
			rec.AppliedTick = &tick
			if err := tx.UpdatePointGuarded(next, p.Health, p.AcquiredBy); err != nil {
				return err
			}
			updated = next
		} else {
			// Tick mode: the archiver applies; submission only queues.
			updated = p
		}

		if err := tx.InsertAction(rec); err != nil {
			return err
		}
		if err := tx.ConsumePuzzle(req.PuzzleID); err != nil {
			return err
		}
		if err := tx.SetLastAction(userID, now); err != nil {
			return err
		}
		return tx.AddExperience(userID, e.tune.XPPerAction)
	})
	if err != nil {
		return game.Point{}, err
	}

	if e.audit != nil {
		entry := persistlog.AuditLogEntry{
			ActionID:  rec.ID,
			CreatedBy: rec.CreatedBy,
			PointID:   rec.Point,
			Type:      string(rec.Type),
			Tick:      tickNo,
			CreatedAt: rec.CreatedAt,
		}
		if err := e.audit.WriteAudit(entry); err != nil {
			e.log.Printf("audit write failed for action %s: %v", rec.ID, err)
		}
	}

	e.log.Printf("user %s performed %s on point %s", userID, actionType, req.Point)
	return updated, nil
}

// effects computes the tuned magnitudes for one application, group-scaled by
// same-faction presence at the point. The actor always counts, checked in or
// not.
func (e *Engine) effects(tx *store.Tx, p game.Point, data store.UserGameData, now time.Time) (game.Effects, error) {
	groupSize, err := tx.CountPresence(p.ID, data.FactionID, now.Add(-e.tune.PresenceWindow()))
	if err != nil {
		return game.Effects{}, err
	}
	if groupSize < 1 {
		groupSize = 1
	}
	return game.Effects{
		AttackDamage: game.GroupStrength(e.tune.UserBaseDamage, e.tune.UserMaxDamage, e.tune.GroupAttackModifier, groupSize),
		RepairHeal:   game.GroupStrength(e.tune.UserBaseRepair, e.tune.UserMaxRepair, e.tune.GroupRepairModifier, groupSize),

		MaxLevel:          e.tune.MaxPointLevel,
		BaseMaxHealth:     e.tune.BaseMaxHealth,
		MaxHealthPerLevel: e.tune.MaxHealthPerLevel,
	}, nil
}

// CheckIn records physical presence at a point; co-located same-faction
// players raise group strength. Establishing that the player is really there
// (scan, geofence) is the client's collaborator, not this core.
func (e *Engine) CheckIn(ctx context.Context, userID, pointID string) error {
	if !game.IsUUID4(pointID) {
		return game.Errorf(game.CodeInvalidInput, "point is not a valid uuid4")
	}
	return e.store.Tx(ctx, func(tx *store.Tx) error {
		if _, err := tx.Point(pointID); err != nil {
			return err
		}
		return tx.RecordPresence(pointID, userID, e.now())
	})
}
