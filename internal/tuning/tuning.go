// Package tuning loads the gameplay constants from tuning.yaml. Values are
// read once at startup; the running game does not watch the file.
package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type ActionMode string

const (
	// ModeLive applies actions immediately from the pipeline.
	ModeLive ActionMode = "live"
	// ModeTick enqueues validated actions; the tick archiver applies them.
	ModeTick ActionMode = "tick"
)

type Tuning struct {
	UserBaseDamage      float64 `yaml:"user_base_damage"`
	UserMaxDamage       float64 `yaml:"user_max_damage"`
	UserBaseRepair      float64 `yaml:"user_base_repair"`
	UserMaxRepair       float64 `yaml:"user_max_repair"`
	GroupAttackModifier float64 `yaml:"group_attack_modifier"`
	GroupRepairModifier float64 `yaml:"group_repair_modifier"`

	CooldownSeconds             int `yaml:"cooldown_seconds"`
	PointUserKickTimeoutSeconds int `yaml:"point_user_kick_timeout_seconds"`

	PuzzleTimeoutSeconds map[string]int `yaml:"puzzle_timeout_seconds"`
	LightsOffDifficulty  string         `yaml:"lights_off_difficulty"`

	BaseMaxHealth           int `yaml:"base_max_health"`
	MaxHealthPerLevel       int `yaml:"max_health_per_level"`
	MaxPointLevel           int `yaml:"max_point_level"`
	UpgradeCostActionPoints int `yaml:"upgrade_cost_action_points"`
	XPPerAction             int `yaml:"xp_per_action"`

	Mode ActionMode `yaml:"action_mode"`
}

func Defaults() Tuning {
	return Tuning{
		UserBaseDamage:      5,
		UserMaxDamage:       20,
		UserBaseRepair:      10,
		UserMaxRepair:       30,
		GroupAttackModifier: 1.5,
		GroupRepairModifier: 1.5,

		CooldownSeconds:             30,
		PointUserKickTimeoutSeconds: 300,

		PuzzleTimeoutSeconds: map[string]int{
			"math":       10,
			"lights_off": 60,
		},
		LightsOffDifficulty: "medium",

		BaseMaxHealth:           255,
		MaxHealthPerLevel:       50,
		MaxPointLevel:           5,
		UpgradeCostActionPoints: 3,
		XPPerAction:             10,

		Mode: ModeLive,
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if t.Mode != ModeLive && t.Mode != ModeTick {
		return t, fmt.Errorf("tuning.yaml: action_mode must be %q or %q, got %q", ModeLive, ModeTick, t.Mode)
	}
	return t, nil
}

func (t Tuning) Cooldown() time.Duration {
	return time.Duration(t.CooldownSeconds) * time.Second
}

// PresenceWindow is how long a check-in at a point counts toward group
// strength before the player is considered to have walked away.
func (t Tuning) PresenceWindow() time.Duration {
	return time.Duration(t.PointUserKickTimeoutSeconds) * time.Second
}

// TimeoutFor returns the solve window for a puzzle type. Unknown types fall
// back to the shortest configured window so a stale row can never outlive a
// known one.
func (t Tuning) TimeoutFor(puzzleType string) time.Duration {
	if s, ok := t.PuzzleTimeoutSeconds[puzzleType]; ok {
		return time.Duration(s) * time.Second
	}
	min := 0
	for _, s := range t.PuzzleTimeoutSeconds {
		if min == 0 || s < min {
			min = s
		}
	}
	if min == 0 {
		min = 10
	}
	return time.Duration(min) * time.Second
}
