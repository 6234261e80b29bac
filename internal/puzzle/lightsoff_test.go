package puzzle

import (
	"encoding/json"
	"math/rand"
	"testing"
)

func TestField_Toggle_Neighbors(t *testing.T) {
	var f Field
	f = f.Toggle(2, 2)

	on := map[[2]int]bool{{2, 2}: true, {1, 2}: true, {3, 2}: true, {2, 1}: true, {2, 3}: true}
	for row := 0; row < fieldSize; row++ {
		for col := 0; col < fieldSize; col++ {
			if f[row][col] != on[[2]int{row, col}] {
				t.Fatalf("cell (%d,%d)=%v, want %v", row, col, f[row][col], on[[2]int{row, col}])
			}
		}
	}
}

func TestField_Toggle_Corner(t *testing.T) {
	var f Field
	f = f.Toggle(0, 0)

	count := 0
	for row := 0; row < fieldSize; row++ {
		for col := 0; col < fieldSize; col++ {
			if f[row][col] {
				count++
			}
		}
	}
	// Corner toggles itself plus two in-bounds neighbors.
	if count != 3 {
		t.Fatalf("corner toggle lit %d cells, want 3", count)
	}
	if !f[0][0] || !f[0][1] || !f[1][0] {
		t.Fatalf("corner toggle lit wrong cells: %v", f)
	}
}

func TestField_Toggle_SelfInverse(t *testing.T) {
	var f Field
	f = f.Toggle(3, 1).Toggle(3, 1)
	if !f.Solved() {
		t.Fatalf("double toggle should return to all-off, got %v", f)
	}
}

func TestLightsOffGenerator_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, d := range []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard} {
		g := NewLightsOffGenerator(d)
		for i := 0; i < 25; i++ {
			task, result, err := g.Generate(rng)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}

			ok, err := g.IsValid(task, result)
			if err != nil {
				t.Fatalf("IsValid: %v", err)
			}
			if !ok {
				t.Fatalf("recorded solution does not solve its own puzzle: %s / %s", task, result)
			}

			// Toggles commute, so the reversed move list must solve too.
			var res lightsOffResult
			if err := json.Unmarshal(result, &res); err != nil {
				t.Fatalf("unmarshal result: %v", err)
			}
			rev := make([]Move, len(res.Moves))
			for j, m := range res.Moves {
				rev[len(res.Moves)-1-j] = m
			}
			reversed, err := json.Marshal(lightsOffResult{Moves: rev})
			if err != nil {
				t.Fatalf("marshal reversed: %v", err)
			}
			ok, err = g.IsValid(task, reversed)
			if err != nil {
				t.Fatalf("IsValid reversed: %v", err)
			}
			if !ok {
				t.Fatalf("reversed solution does not solve puzzle: %s", task)
			}
		}
	}
}

func TestLightsOffGenerator_MoveCountByDifficulty(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	ranges := map[Difficulty][2]int{
		DifficultyEasy:   {3, 7},
		DifficultyMedium: {8, 12},
		DifficultyHard:   {13, 18},
	}
	for d, want := range ranges {
		g := NewLightsOffGenerator(d)
		for i := 0; i < 20; i++ {
			_, result, err := g.Generate(rng)
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			var res lightsOffResult
			if err := json.Unmarshal(result, &res); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if n := len(res.Moves); n < want[0] || n > want[1] {
				t.Fatalf("difficulty %s generated %d moves, want %d..%d", d, n, want[0], want[1])
			}
		}
	}
}

func TestLightsOffGenerator_IsValid_EmptyMoves(t *testing.T) {
	g := NewLightsOffGenerator(DifficultyMedium)

	var solved Field
	task, err := json.Marshal(solved)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	ok, err := g.IsValid(task, json.RawMessage(`{"moves":[]}`))
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if !ok {
		t.Fatalf("empty move list must solve an already-solved grid")
	}

	scrambled := solved.Toggle(1, 1)
	task, err = json.Marshal(scrambled)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ok, err = g.IsValid(task, json.RawMessage(`{"moves":[]}`))
	if err != nil {
		t.Fatalf("IsValid: %v", err)
	}
	if ok {
		t.Fatalf("empty move list must not solve an unsolved grid")
	}
}

func TestLightsOffGenerator_IsValid_Malformed(t *testing.T) {
	g := NewLightsOffGenerator(DifficultyMedium)

	var f Field
	task, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	bad := []string{
		`{}`,
		`{"moves":null}`,
		`{"moves":[{"row":5,"col":0}]}`,
		`{"moves":[{"row":-1,"col":0}]}`,
		`{"moves":[{"row":0}]}`,
		`{"moves":[{"row":"a","col":0}]}`,
	}
	for _, submitted := range bad {
		if _, err := g.IsValid(task, json.RawMessage(submitted)); err == nil {
			t.Fatalf("IsValid(%s) expected error", submitted)
		}
	}

	badTasks := []string{
		`{"version":2,"field":[[false]]}`,
		`{"version":1,"field":[[false,false,false,false,false]]}`,
		`{"version":1}`,
	}
	for _, taskJSON := range badTasks {
		if _, err := g.IsValid(json.RawMessage(taskJSON), json.RawMessage(`{"moves":[]}`)); err == nil {
			t.Fatalf("IsValid task %s expected error", taskJSON)
		}
	}
}
