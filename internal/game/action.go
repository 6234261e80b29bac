package game

import (
	"github.com/google/uuid"
)

type ActionType string

const (
	ActionAttack         ActionType = "attack"
	ActionAttackAndClaim ActionType = "attack_and_claim"
	ActionRepair         ActionType = "repair"
	ActionClaim          ActionType = "claim"
	ActionUpgrade        ActionType = "upgrade"
)

var actionTypes = map[ActionType]bool{
	ActionAttack:         true,
	ActionAttackAndClaim: true,
	ActionRepair:         true,
	ActionClaim:          true,
	ActionUpgrade:        true,
}

func ParseActionType(s string) (ActionType, error) {
	t := ActionType(s)
	if !actionTypes[t] {
		return "", Errorf(CodeInvalidInput, "unknown action type %q", s)
	}
	return t, nil
}

// ActionRequest is the client payload for one action. The actor is session
// derived; the puzzle id is explicit (the capability token being spent).
type ActionRequest struct {
	Point    string `json:"point"`
	Type     string `json:"type"`
	PuzzleID string `json:"puzzleId"`
}

// Validate performs the structural gate: uuid4 identifiers and a known action
// type. Faction rules and capability checks come later in the pipeline.
func (r ActionRequest) Validate() error {
	if !IsUUID4(r.Point) {
		return Errorf(CodeInvalidInput, "point is not a valid uuid4")
	}
	if _, err := ParseActionType(r.Type); err != nil {
		return err
	}
	if !IsUUID4(r.PuzzleID) {
		return Errorf(CodeInvalidInput, "puzzleId is not a valid uuid4")
	}
	return nil
}

func IsUUID4(s string) bool {
	u, err := uuid.Parse(s)
	if err != nil {
		return false
	}
	return u.Version() == 4
}
