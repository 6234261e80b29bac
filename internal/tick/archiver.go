// Package tick advances the global game tick: it drains pending tasks
// through the point transition table, snapshots every point into the
// immutable history archive and bumps the tick counter, all in one
// transaction.
package tick

import (
	"context"
	"log"
	"sync"
	"time"

	"turfpoint.gg/internal/game"
	persistlog "turfpoint.gg/internal/persistence/log"
	"turfpoint.gg/internal/store"
	"turfpoint.gg/internal/tuning"
)

// EventSink matches engine.EventSink; the archiver emits a change event per
// point it mutates.
type EventSink interface {
	PointChanged(pointID string)
}

type Archiver struct {
	store *store.Store
	tune  tuning.Tuning
	log   *log.Logger
	sink  EventSink

	tickLog *persistlog.TickLogger // optional

	// Single-flight: the archiver must never overlap with itself. The
	// AdvanceTick guard in the store catches cross-process races; this
	// mutex keeps one process honest.
	mu sync.Mutex

	now func() time.Time
}

func New(st *store.Store, tune tuning.Tuning, logger *log.Logger, sink EventSink, tickLog *persistlog.TickLogger) *Archiver {
	if sink == nil {
		sink = nopSink{}
	}
	return &Archiver{
		store:   st,
		tune:    tune,
		log:     logger,
		sink:    sink,
		tickLog: tickLog,
		now:     time.Now,
	}
}

type nopSink struct{}

func (nopSink) PointChanged(string) {}

// Run performs one tick. Paused games no-op and report the unchanged tick.
// Tasks are consumed transactionally with the tick advance, so a re-run
// after a crash or a duplicate trigger can never double-apply them.
func (a *Archiver) Run(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	var (
		entry   persistlog.TickLogEntry
		changed []string
		paused  bool
		tick    uint64
	)
	err := a.store.Tx(ctx, func(tx *store.Tx) error {
		g, err := tx.Game()
		if err != nil {
			return err
		}
		tick = g.Tick
		if g.Paused() {
			paused = true
			return nil
		}

		points, err := tx.Points()
		if err != nil {
			return err
		}
		before := make(map[string]game.Point, len(points))
		current := make(map[string]game.Point, len(points))
		for _, p := range points {
			before[p.ID] = p
			current[p.ID] = p
		}

		tasks, err := tx.PendingTasks()
		if err != nil {
			return err
		}

		newTick := g.Tick + 1
		applied := 0
		for _, task := range tasks {
			p, ok := current[task.Point]
			if !ok {
				a.log.Printf("task %s targets unknown point %s, dropping", task.ID, task.Point)
				if err := tx.MarkTaskApplied(task.ID, newTick); err != nil {
					return err
				}
				continue
			}

			next, err := a.applyTask(tx, p, task, now)
			if err != nil {
				// A task that was valid at submission can be doomed
				// by an earlier task this tick (point captured by
				// the actor's own faction, for example). It is
				// consumed either way; tasks never carry over.
				a.log.Printf("task %s (%s on %s) rejected: %v", task.ID, task.Type, task.Point, err)
			} else {
				current[task.Point] = next
				applied++
			}
			if err := tx.MarkTaskApplied(task.ID, newTick); err != nil {
				return err
			}
		}

		for id, p := range current {
			prev := before[id]
			if p == prev {
				continue
			}
			if err := tx.UpdatePointGuarded(p, prev.Health, prev.AcquiredBy); err != nil {
				return err
			}
			changed = append(changed, id)
		}

		entry = persistlog.TickLogEntry{Tick: newTick, RecordedAt: now, Applied: applied}
		for _, orig := range points {
			p := current[orig.ID]
			if err := tx.InsertArchiveRow(store.ArchiveRow{
				PointID:    p.ID,
				Tick:       newTick,
				Health:     p.Health,
				AcquiredBy: p.AcquiredBy,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
			entry.Points = append(entry.Points, persistlog.PointLogRecord{
				PointID:    p.ID,
				Health:     p.Health,
				AcquiredBy: p.AcquiredBy,
			})
		}

		if err := tx.AdvanceTick(g.Tick); err != nil {
			return err
		}
		tick = newTick
		return nil
	})
	if err != nil {
		return tick, err
	}
	if paused {
		a.log.Printf("game paused, tick %d not advanced", tick)
		return tick, nil
	}

	if a.tickLog != nil {
		if err := a.tickLog.WriteTick(entry); err != nil {
			a.log.Printf("tick log write: %v", err)
		}
	}
	for _, id := range changed {
		a.sink.PointChanged(id)
	}
	a.log.Printf("tick %d archived (%d points, %d tasks applied)", tick, len(entry.Points), entry.Applied)
	return tick, nil
}

func (a *Archiver) applyTask(tx *store.Tx, p game.Point, task store.Task, now time.Time) (game.Point, error) {
	groupSize, err := tx.CountPresence(p.ID, task.FactionID, now.Add(-a.tune.PresenceWindow()))
	if err != nil {
		return p, err
	}
	if groupSize < 1 {
		groupSize = 1
	}
	eff := game.Effects{
		AttackDamage: game.GroupStrength(a.tune.UserBaseDamage, a.tune.UserMaxDamage, a.tune.GroupAttackModifier, groupSize),
		RepairHeal:   game.GroupStrength(a.tune.UserBaseRepair, a.tune.UserMaxRepair, a.tune.GroupRepairModifier, groupSize),

		MaxLevel:          a.tune.MaxPointLevel,
		BaseMaxHealth:     a.tune.BaseMaxHealth,
		MaxHealthPerLevel: a.tune.MaxHealthPerLevel,
	}
	return game.Apply(p, task.Type, task.FactionID, eff)
}

// Snapshot archives the current state of every point at the current tick
// without advancing gameplay. Safe to re-run: rows are keyed by
// (point, tick).
func (a *Archiver) Snapshot(ctx context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	var tick uint64
	err := a.store.Tx(ctx, func(tx *store.Tx) error {
		g, err := tx.Game()
		if err != nil {
			return err
		}
		tick = g.Tick

		points, err := tx.Points()
		if err != nil {
			return err
		}
		for _, p := range points {
			if err := tx.InsertArchiveRow(store.ArchiveRow{
				PointID:    p.ID,
				Tick:       g.Tick,
				Health:     p.Health,
				AcquiredBy: p.AcquiredBy,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return tick, err
	}
	a.log.Printf("manual snapshot at tick %d", tick)
	return tick, nil
}
