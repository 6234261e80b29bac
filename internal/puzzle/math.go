package puzzle

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

// MathGenerator issues single-operation arithmetic tasks. Generation always
// uses "+" (small numbers, solvable at a glance on a phone); validation
// accepts any of the four operators so older persisted tasks stay checkable.
type MathGenerator struct{}

type mathTask struct {
	LeftHandle  *float64 `json:"leftHandle"`
	RightHandle *float64 `json:"rightHandle"`
	Operator    *string  `json:"operator"`
}

func (MathGenerator) Generate(rng *rand.Rand) (json.RawMessage, json.RawMessage, error) {
	left := float64(rng.Intn(10))
	right := float64(rng.Intn(10))
	op := "+"

	res, err := calculate(left, right, op)
	if err != nil {
		return nil, nil, err
	}

	task, err := json.Marshal(map[string]any{
		"leftHandle":  left,
		"rightHandle": right,
		"operator":    op,
	})
	if err != nil {
		return nil, nil, err
	}
	result, err := json.Marshal(res)
	if err != nil {
		return nil, nil, err
	}
	return task, result, nil
}

func (MathGenerator) IsValid(task, submitted json.RawMessage) (bool, error) {
	var t mathTask
	if err := json.Unmarshal(task, &t); err != nil {
		return false, fmt.Errorf("math task: %w", err)
	}
	if t.LeftHandle == nil {
		return false, fmt.Errorf("math task: leftHandle missing or not a number")
	}
	if t.RightHandle == nil {
		return false, fmt.Errorf("math task: rightHandle missing or not a number")
	}
	if t.Operator == nil {
		return false, fmt.Errorf("math task: operator missing or not a string")
	}

	want, err := calculate(*t.LeftHandle, *t.RightHandle, *t.Operator)
	if err != nil {
		return false, fmt.Errorf("math task: %w", err)
	}

	var got float64
	if err := json.Unmarshal(submitted, &got); err != nil {
		return false, fmt.Errorf("math result: %w", err)
	}
	return got == want, nil
}

func calculate(left, right float64, op string) (float64, error) {
	switch op {
	case "+":
		return left + right, nil
	case "-":
		return left - right, nil
	case "*":
		return left * right, nil
	case "/":
		return left / right, nil
	default:
		return 0, fmt.Errorf("invalid operator %q", op)
	}
}
