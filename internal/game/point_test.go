package game

import (
	"errors"
	"testing"
)

var testEffects = Effects{
	AttackDamage:      5,
	RepairHeal:        10,
	MaxLevel:          5,
	BaseMaxHealth:     255,
	MaxHealthPerLevel: 50,
}

func testPoint(owner string) Point {
	return Point{
		ID:         "p1",
		Name:       "Fountain",
		Health:     255,
		MaxHealth:  255,
		Level:      1,
		AcquiredBy: owner,
	}
}

func assertAuthError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	var ge *Error
	if !errors.As(err, &ge) || ge.Code != CodeAuthError {
		t.Fatalf("expected AUTH_ERROR, got %v", err)
	}
}

func TestApply_Attack(t *testing.T) {
	p := testPoint("red")

	got, err := Apply(p, ActionAttack, "blue", testEffects)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Health != 250 {
		t.Fatalf("health=%d, want 250", got.Health)
	}
	if got.AcquiredBy != "red" {
		t.Fatalf("plain attack must not transfer ownership, got %q", got.AcquiredBy)
	}
	if p.Health != 255 {
		t.Fatalf("Apply mutated its input")
	}
}

func TestApply_Attack_NeutralPointRejected(t *testing.T) {
	p := testPoint("")
	got, err := Apply(p, ActionAttack, "blue", testEffects)
	assertAuthError(t, err)
	if got != p {
		t.Fatalf("failed transition changed the point: %+v", got)
	}
}

func TestApply_Attack_OwnFactionRejected(t *testing.T) {
	p := testPoint("blue")
	got, err := Apply(p, ActionAttack, "blue", testEffects)
	assertAuthError(t, err)
	if got != p {
		t.Fatalf("failed transition changed the point: %+v", got)
	}
}

func TestApply_Attack_ClampsAtZero(t *testing.T) {
	p := testPoint("red")
	p.Health = 3

	got, err := Apply(p, ActionAttack, "blue", testEffects)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Health != 0 {
		t.Fatalf("health=%d, want 0", got.Health)
	}
	if got.AcquiredBy != "red" {
		t.Fatalf("plain attack must not transfer ownership")
	}
}

func TestApply_AttackAndClaim(t *testing.T) {
	p := testPoint("red")

	got, err := Apply(p, ActionAttackAndClaim, "blue", testEffects)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Health != 250 || got.AcquiredBy != "red" {
		t.Fatalf("high-health point must only lose health, got %+v", got)
	}

	p.Health = 4
	got, err = Apply(p, ActionAttackAndClaim, "blue", testEffects)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.AcquiredBy != "blue" {
		t.Fatalf("ownership must transfer in the same call, got %q", got.AcquiredBy)
	}
	if got.Health != got.MaxHealth {
		t.Fatalf("health must reset to max on capture, got %d", got.Health)
	}
}

func TestApply_AttackAndClaim_Preconditions(t *testing.T) {
	_, err := Apply(testPoint(""), ActionAttackAndClaim, "blue", testEffects)
	assertAuthError(t, err)
	_, err = Apply(testPoint("blue"), ActionAttackAndClaim, "blue", testEffects)
	assertAuthError(t, err)
}

func TestApply_Repair(t *testing.T) {
	p := testPoint("blue")
	p.Health = 100

	got, err := Apply(p, ActionRepair, "blue", testEffects)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Health != 110 {
		t.Fatalf("health=%d, want 110", got.Health)
	}
}

func TestApply_Repair_CapsAtMaxHealth(t *testing.T) {
	p := testPoint("blue")
	p.Health = 250

	got, err := Apply(p, ActionRepair, "blue", testEffects)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Health != 255 {
		t.Fatalf("health=%d, want 255 (never above max)", got.Health)
	}
}

func TestApply_Repair_WrongFactionRejected(t *testing.T) {
	_, err := Apply(testPoint("red"), ActionRepair, "blue", testEffects)
	assertAuthError(t, err)
	_, err = Apply(testPoint(""), ActionRepair, "blue", testEffects)
	assertAuthError(t, err)
}

func TestApply_Claim(t *testing.T) {
	got, err := Apply(testPoint(""), ActionClaim, "blue", testEffects)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.AcquiredBy != "blue" {
		t.Fatalf("acquiredBy=%q, want blue", got.AcquiredBy)
	}

	_, err = Apply(testPoint("red"), ActionClaim, "blue", testEffects)
	assertAuthError(t, err)
	_, err = Apply(testPoint("blue"), ActionClaim, "blue", testEffects)
	assertAuthError(t, err)
}

func TestApply_Upgrade(t *testing.T) {
	p := testPoint("blue")
	p.Health = 100 // 100/255 damage fraction carries over

	got, err := Apply(p, ActionUpgrade, "blue", testEffects)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got.Level != 2 {
		t.Fatalf("level=%d, want 2", got.Level)
	}
	if got.MaxHealth != 305 {
		t.Fatalf("maxHealth=%d, want 305", got.MaxHealth)
	}
	if got.Health != 100*305/255 {
		t.Fatalf("health=%d, want %d", got.Health, 100*305/255)
	}
}

func TestApply_Upgrade_LevelCap(t *testing.T) {
	p := testPoint("blue")
	p.Level = 5

	_, err := Apply(p, ActionUpgrade, "blue", testEffects)
	if err == nil {
		t.Fatalf("expected level cap error")
	}
	var ge *Error
	if !errors.As(err, &ge) || ge.Code != CodeInvalidInput {
		t.Fatalf("expected INVALID_INPUT, got %v", err)
	}
}

func TestApply_HealthInvariant(t *testing.T) {
	// Random-ish walk over the transition table; health must stay in
	// [0, maxHealth] after every successful transition.
	p := testPoint("red")
	factions := []string{"red", "blue", ""}
	acts := []ActionType{ActionAttack, ActionAttackAndClaim, ActionRepair, ActionClaim, ActionUpgrade}

	for i := 0; i < 500; i++ {
		act := acts[i%len(acts)]
		faction := factions[(i/3)%2]
		next, err := Apply(p, act, faction, testEffects)
		if err != nil {
			continue
		}
		if next.Health < 0 || next.Health > next.MaxHealth {
			t.Fatalf("step %d (%s by %s): health %d outside [0,%d]", i, act, faction, next.Health, next.MaxHealth)
		}
		p = next
	}
}
