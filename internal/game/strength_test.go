package game

import "testing"

func TestGroupStrength(t *testing.T) {
	cases := []struct {
		name      string
		base, max float64
		modifier  float64
		groupSize int
		want      int
	}{
		{"single actor", 5, 20, 1.5, 1, 5},
		{"pair", 5, 20, 1.5, 2, 13},         // (5+1.5)*2
		{"capped per user", 5, 6, 2, 4, 24}, // min(6, 5+6)=6, *4
		{"zero clamps to one", 5, 20, 1.5, 0, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := GroupStrength(tc.base, tc.max, tc.modifier, tc.groupSize)
			if got != tc.want {
				t.Fatalf("GroupStrength=%d, want %d", got, tc.want)
			}
		})
	}
}
