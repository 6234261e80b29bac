package httpapi

import (
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

type requestSchemas struct {
	action      *jsonschema.Schema
	puzzleSolve *jsonschema.Schema
	checkin     *jsonschema.Schema
}

func compileSchemas() (*requestSchemas, error) {
	c := jsonschema.NewCompiler()
	for _, name := range []string{"action", "puzzle_solve", "checkin"} {
		file := "schemas/" + name + ".schema.json"
		f, err := schemaFS.Open(file)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(name+".schema.json", f); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("add %s: %w", file, err)
		}
		_ = f.Close()
	}

	var (
		s   requestSchemas
		err error
	)
	if s.action, err = c.Compile("action.schema.json"); err != nil {
		return nil, err
	}
	if s.puzzleSolve, err = c.Compile("puzzle_solve.schema.json"); err != nil {
		return nil, err
	}
	if s.checkin, err = c.Compile("checkin.schema.json"); err != nil {
		return nil, err
	}
	return &s, nil
}
