// Package puzzle generates and validates the capability puzzles players must
// solve before acting on a point. Generators are pure: persistence of the
// task/result pair is the caller's concern.
package puzzle

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

type Type string

const (
	TypeMath      Type = "math"
	TypeLightsOff Type = "lights_off"
)

// Generator produces a fresh puzzle task plus its expected result, and can
// later re-check a submitted result against a task. IsValid returns an error
// (not false) for malformed input so callers can distinguish a wrong answer
// from a broken payload.
type Generator interface {
	Generate(rng *rand.Rand) (task, result json.RawMessage, err error)
	IsValid(task, submitted json.RawMessage) (bool, error)
}

// ForType dispatches on the persisted type tag.
func ForType(t Type, difficulty Difficulty) (Generator, error) {
	switch t {
	case TypeMath:
		return MathGenerator{}, nil
	case TypeLightsOff:
		return NewLightsOffGenerator(difficulty), nil
	default:
		return nil, fmt.Errorf("unknown puzzle type %q", t)
	}
}

// RandomType picks a type for a new puzzle, uniform over math and lights-off.
func RandomType(rng *rand.Rand) Type {
	if rng.Intn(2) == 0 {
		return TypeMath
	}
	return TypeLightsOff
}
