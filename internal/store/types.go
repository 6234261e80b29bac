package store

import (
	"encoding/json"
	"time"

	"turfpoint.gg/internal/game"
)

const (
	StatePlaying = "playing"
	StatePaused  = "paused"
)

const (
	RolePlayer = "player"
	RoleAdmin  = "admin"
)

// GameRow is the singleton row carrying the global tick counter and pause
// state.
type GameRow struct {
	Tick  uint64
	State string
}

func (g GameRow) Paused() bool { return g.State == StatePaused }

type User struct {
	ID   string
	Name string
	Role string // player | admin
}

type UserGameData struct {
	UserID       string
	FactionID    string
	LastAction   *time.Time
	Experience   int
	ActionPoints int
}

type Puzzle struct {
	ID        string
	UserID    string
	Type      string
	Task      json.RawMessage
	Solved    bool
	Timeout   bool
	Consumed  bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (p Puzzle) Expired(now time.Time) bool { return now.After(p.ExpiresAt) }

// ActionRecord is one row of the append-only audit log. AppliedTick is nil
// while the action is still a pending task (tick mode only).
type ActionRecord struct {
	ID          string
	CreatedBy   string
	Point       string
	Puzzle      string
	Type        game.ActionType
	CreatedAt   time.Time
	AppliedTick *uint64
}

// Task is a pending action joined with the actor's faction, ready for the
// tick archiver.
type Task struct {
	ActionRecord
	FactionID string
}

type Faction struct {
	ID   string
	Name string
}

type ArchiveRow struct {
	PointID    string
	Tick       uint64
	Health     int
	AcquiredBy string
	CreatedAt  time.Time
}
