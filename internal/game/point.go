// Package game holds the faction-control rules: the point transition table,
// action validation and the coded error taxonomy. Everything here is pure;
// persistence and orchestration live in internal/store and internal/engine.
package game

type Point struct {
	ID         string
	Name       string
	Health     int
	MaxHealth  int
	Level      int
	AcquiredBy string // faction id; empty means neutral
}

func (p Point) Neutral() bool { return p.AcquiredBy == "" }

// Effects carries the tuned magnitudes a single application of the transition
// table needs. Attack/repair values may already be group-scaled (see
// GroupStrength).
type Effects struct {
	AttackDamage int
	RepairHeal   int

	MaxLevel          int
	BaseMaxHealth     int
	MaxHealthPerLevel int
}

// Apply runs one transition of the point state machine. It never mutates p;
// on error the returned point is p unchanged. Precondition violations are
// AUTH_ERROR (faction rules) or INVALID_INPUT (level cap); resource costs for
// upgrade are the pipeline's concern.
func Apply(p Point, act ActionType, factionID string, eff Effects) (Point, error) {
	switch act {
	case ActionAttack:
		return applyAttack(p, factionID, eff.AttackDamage, false)
	case ActionAttackAndClaim:
		return applyAttack(p, factionID, eff.AttackDamage, true)
	case ActionRepair:
		return applyRepair(p, factionID, eff.RepairHeal)
	case ActionClaim:
		return applyClaim(p, factionID)
	case ActionUpgrade:
		return applyUpgrade(p, eff)
	default:
		return p, Errorf(CodeInvalidInput, "unknown action type %q", act)
	}
}

func applyAttack(p Point, factionID string, damage int, claim bool) (Point, error) {
	if p.Neutral() {
		return p, Errorf(CodeAuthError, "cannot attack point %s: not claimed", p.ID)
	}
	if p.AcquiredBy == factionID {
		return p, Errorf(CodeAuthError, "cannot attack point %s: owned by own faction", p.ID)
	}

	health := p.Health - damage
	if claim && health <= 0 {
		p.AcquiredBy = factionID
		p.Health = p.MaxHealth
		return p, nil
	}
	if health < 0 {
		health = 0
	}
	p.Health = health
	return p, nil
}

func applyRepair(p Point, factionID string, heal int) (Point, error) {
	if p.Neutral() {
		return p, Errorf(CodeAuthError, "cannot repair point %s: not claimed", p.ID)
	}
	if p.AcquiredBy != factionID {
		return p, Errorf(CodeAuthError, "cannot repair point %s: owned by faction %s", p.ID, p.AcquiredBy)
	}

	health := p.Health + heal
	if health > p.MaxHealth {
		health = p.MaxHealth
	}
	p.Health = health
	return p, nil
}

func applyClaim(p Point, factionID string) (Point, error) {
	if !p.Neutral() {
		return p, Errorf(CodeAuthError, "cannot claim point %s: already acquired by %s", p.ID, p.AcquiredBy)
	}
	p.AcquiredBy = factionID
	return p, nil
}

func applyUpgrade(p Point, eff Effects) (Point, error) {
	if eff.MaxLevel > 0 && p.Level >= eff.MaxLevel {
		return p, Errorf(CodeInvalidInput, "point %s already at max level %d", p.ID, eff.MaxLevel)
	}

	oldMax := p.MaxHealth
	p.Level++
	p.MaxHealth = eff.BaseMaxHealth + (p.Level-1)*eff.MaxHealthPerLevel

	// Keep the damage fraction constant across the capacity change.
	if oldMax > 0 {
		p.Health = p.Health * p.MaxHealth / oldMax
	} else {
		p.Health = p.MaxHealth
	}
	if p.Health < 1 {
		p.Health = 1
	}
	if p.Health > p.MaxHealth {
		p.Health = p.MaxHealth
	}
	return p, nil
}
