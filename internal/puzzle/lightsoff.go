package puzzle

import (
	"encoding/json"
	"fmt"
	"math/rand"
)

const fieldSize = 5

// Field is a 5x5 light grid; true means the light is on. Value semantics:
// Toggle returns a new field, so tasks can be replayed without aliasing.
type Field [fieldSize][fieldSize]bool

type fieldJSON struct {
	Version int      `json:"version"`
	Field   [][]bool `json:"field"`
}

// Toggle flips (row,col) and its orthogonal in-bounds neighbors. No
// diagonals, no wraparound. Out-of-range coordinates leave the field as is;
// range checking belongs to the caller.
func (f Field) Toggle(row, col int) Field {
	if row < 0 || row >= fieldSize || col < 0 || col >= fieldSize {
		return f
	}
	f[row][col] = !f[row][col]
	for _, p := range [][2]int{{row - 1, col}, {row + 1, col}, {row, col - 1}, {row, col + 1}} {
		if p[0] >= 0 && p[0] < fieldSize && p[1] >= 0 && p[1] < fieldSize {
			f[p[0]][p[1]] = !f[p[0]][p[1]]
		}
	}
	return f
}

func (f Field) Solved() bool {
	for row := 0; row < fieldSize; row++ {
		for col := 0; col < fieldSize; col++ {
			if f[row][col] {
				return false
			}
		}
	}
	return true
}

func (f Field) MarshalJSON() ([]byte, error) {
	rows := make([][]bool, fieldSize)
	for i := range rows {
		rows[i] = f[i][:]
	}
	return json.Marshal(fieldJSON{Version: 1, Field: rows})
}

func (f *Field) UnmarshalJSON(b []byte) error {
	var raw fieldJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Version != 1 {
		return fmt.Errorf("field version must be 1, got %d", raw.Version)
	}
	if len(raw.Field) != fieldSize {
		return fmt.Errorf("field must have %d rows, got %d", fieldSize, len(raw.Field))
	}
	for i, row := range raw.Field {
		if len(row) != fieldSize {
			return fmt.Errorf("row %d must have %d columns, got %d", i, fieldSize, len(row))
		}
		copy(f[i][:], row)
	}
	return nil
}

// Difficulty scales the number of scramble moves, which bounds the length of
// the shortest obvious solution (replaying the scramble).
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

type Move struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type lightsOffResult struct {
	Moves []Move `json:"moves"`
}

// LightsOffGenerator builds puzzles by scrambling an all-off grid with random
// toggles. Toggle is its own inverse and toggles commute, so replaying the
// scramble in any order solves the puzzle; every generated task is solvable.
type LightsOffGenerator struct {
	minMoves int
	maxMoves int
}

func NewLightsOffGenerator(d Difficulty) LightsOffGenerator {
	switch d {
	case DifficultyEasy:
		return LightsOffGenerator{minMoves: 3, maxMoves: 7}
	case DifficultyHard:
		return LightsOffGenerator{minMoves: 13, maxMoves: 18}
	default:
		return LightsOffGenerator{minMoves: 8, maxMoves: 12}
	}
}

func (g LightsOffGenerator) Generate(rng *rand.Rand) (json.RawMessage, json.RawMessage, error) {
	numMoves := g.minMoves + rng.Intn(g.maxMoves-g.minMoves+1)

	var field Field
	moves := make([]Move, 0, numMoves)
	used := make(map[Move]bool, numMoves)

	for i := 0; i < numMoves; i++ {
		// Prefer fresh positions so moves rarely cancel out; give up
		// after a few attempts rather than loop on a crowded grid.
		var m Move
		attempts := 0
		for {
			m = Move{Row: rng.Intn(fieldSize), Col: rng.Intn(fieldSize)}
			attempts++
			if !used[m] || attempts >= 10 {
				break
			}
		}
		if attempts < 10 {
			used[m] = true
		}
		field = field.Toggle(m.Row, m.Col)
		moves = append(moves, m)
	}

	task, err := json.Marshal(field)
	if err != nil {
		return nil, nil, err
	}
	result, err := json.Marshal(lightsOffResult{Moves: moves})
	if err != nil {
		return nil, nil, err
	}
	return task, result, nil
}

func (g LightsOffGenerator) IsValid(task, submitted json.RawMessage) (bool, error) {
	var field Field
	if err := json.Unmarshal(task, &field); err != nil {
		return false, fmt.Errorf("lights-off task: %w", err)
	}

	moves, err := parseMoves(submitted)
	if err != nil {
		return false, fmt.Errorf("lights-off result: %w", err)
	}

	for _, m := range moves {
		field = field.Toggle(m.Row, m.Col)
	}
	return field.Solved(), nil
}

func parseMoves(submitted json.RawMessage) ([]Move, error) {
	var raw struct {
		Moves *[]json.RawMessage `json:"moves"`
	}
	if err := json.Unmarshal(submitted, &raw); err != nil {
		return nil, err
	}
	if raw.Moves == nil {
		return nil, fmt.Errorf("missing 'moves' array")
	}

	moves := make([]Move, 0, len(*raw.Moves))
	for i, rm := range *raw.Moves {
		var m struct {
			Row *int `json:"row"`
			Col *int `json:"col"`
		}
		if err := json.Unmarshal(rm, &m); err != nil {
			return nil, fmt.Errorf("move %d: %w", i, err)
		}
		if m.Row == nil || m.Col == nil {
			return nil, fmt.Errorf("move %d: missing row or col", i)
		}
		if *m.Row < 0 || *m.Row >= fieldSize || *m.Col < 0 || *m.Col >= fieldSize {
			return nil, fmt.Errorf("move %d: out of range row=%d col=%d", i, *m.Row, *m.Col)
		}
		moves = append(moves, Move{Row: *m.Row, Col: *m.Col})
	}
	return moves, nil
}
