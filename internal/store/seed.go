package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"turfpoint.gg/internal/game"
)

// SeedUser describes one player to create, with their bearer token.
type SeedUser struct {
	Name         string
	Token        string
	Role         string
	Faction      int // index into SeedData.Factions
	ActionPoints int
}

type SeedData struct {
	Factions []string
	Points   []string
	Users    []SeedUser

	MaxHealth int
}

// Seed populates a fresh database with factions, neutral points and users.
// Map placement (coordinates, visibility) is outside this core; points exist
// here only as contested game state.
func (s *Store) Seed(ctx context.Context, data SeedData) error {
	now := time.Now()
	maxHealth := data.MaxHealth
	if maxHealth <= 0 {
		maxHealth = 255
	}

	return s.Tx(ctx, func(tx *Tx) error {
		factionIDs := make([]string, len(data.Factions))
		for i, name := range data.Factions {
			f := Faction{ID: uuid.NewString(), Name: name}
			if err := tx.InsertFaction(f, now); err != nil {
				return err
			}
			factionIDs[i] = f.ID
		}

		for _, name := range data.Points {
			p := game.Point{
				ID:        uuid.NewString(),
				Name:      name,
				Health:    maxHealth,
				MaxHealth: maxHealth,
				Level:     1,
			}
			if err := tx.InsertPoint(p, now); err != nil {
				return err
			}
		}

		for _, su := range data.Users {
			role := su.Role
			if role == "" {
				role = RolePlayer
			}
			u := User{ID: uuid.NewString(), Name: su.Name, Role: role}
			if err := tx.InsertUser(u, su.Token); err != nil {
				return err
			}
			if err := tx.InsertUserGameData(UserGameData{
				UserID:       u.ID,
				FactionID:    factionIDs[su.Faction],
				ActionPoints: su.ActionPoints,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
