package protocol

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func loadSchemas() {
	schemas = map[string]*jsonschema.Schema{}
	for _, typ := range []string{TypeHello, TypeAct, TypeRelease} {
		name := "schemas/" + strings.ToLower(typ) + ".schema.json"
		b, err := schemaFS.ReadFile(name)
		if err != nil {
			schemaErr = err
			return
		}
		s, err := jsonschema.CompileString(name, string(b))
		if err != nil {
			schemaErr = fmt.Errorf("compile %s: %w", name, err)
			return
		}
		schemas[typ] = s
	}
}

// ValidateMessage checks a client message against the schema for typ.
func ValidateMessage(typ string, raw []byte) error {
	schemaOnce.Do(loadSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[typ]
	if !ok {
		return fmt.Errorf("no schema for message type %q", typ)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
