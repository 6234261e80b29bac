package httpapi

import (
	"encoding/json"
	"testing"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	schemas, err := compileSchemas()
	if err != nil {
		t.Fatalf("compileSchemas: %v", err)
	}

	validate := func(raw string) error {
		t.Helper()
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			t.Fatalf("unmarshal sample: %v", err)
		}
		return schemas.action.Validate(v)
	}

	ok := `{
	  "point":"1c9f2d6e-0a3b-4c7d-8e5f-6a1b2c3d4e5f",
	  "type":"attack_and_claim",
	  "puzzleId":"2d8e3f7a-1b4c-4d8e-9f6a-7b2c3d4e5f6a"
	}`
	if err := validate(ok); err != nil {
		t.Fatalf("valid action rejected: %v", err)
	}

	for name, raw := range map[string]string{
		"short point":  `{"point":"abc","type":"attack","puzzleId":"2d8e3f7a-1b4c-4d8e-9f6a-7b2c3d4e5f6a"}`,
		"unknown type": `{"point":"1c9f2d6e-0a3b-4c7d-8e5f-6a1b2c3d4e5f","type":"steal","puzzleId":"2d8e3f7a-1b4c-4d8e-9f6a-7b2c3d4e5f6a"}`,
		"extra key":    `{"point":"1c9f2d6e-0a3b-4c7d-8e5f-6a1b2c3d4e5f","type":"attack","puzzleId":"2d8e3f7a-1b4c-4d8e-9f6a-7b2c3d4e5f6a","x":1}`,
	} {
		if err := validate(raw); err == nil {
			t.Fatalf("%s: expected schema violation", name)
		}
	}

	for name, raw := range map[string]string{
		"moves object":  `{"puzzleId":"2d8e3f7a-1b4c-4d8e-9f6a-7b2c3d4e5f6a","result":{"version":1,"moves":[{"row":0,"col":0}]}}`,
		"number result": `{"puzzleId":"2d8e3f7a-1b4c-4d8e-9f6a-7b2c3d4e5f6a","result":12}`,
	} {
		var solve any
		_ = json.Unmarshal([]byte(raw), &solve)
		if err := schemas.puzzleSolve.Validate(solve); err != nil {
			t.Fatalf("%s: valid solve rejected: %v", name, err)
		}
	}
	var nullSolve any
	_ = json.Unmarshal([]byte(`{"puzzleId":"2d8e3f7a-1b4c-4d8e-9f6a-7b2c3d4e5f6a","result":null}`), &nullSolve)
	if err := schemas.puzzleSolve.Validate(nullSolve); err == nil {
		t.Fatalf("null result: expected schema violation")
	}

	var checkin any
	_ = json.Unmarshal([]byte(`{"point":"1c9f2d6e-0a3b-4c7d-8e5f-6a1b2c3d4e5f"}`), &checkin)
	if err := schemas.checkin.Validate(checkin); err != nil {
		t.Fatalf("valid checkin rejected: %v", err)
	}
}
