package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiledSchemas holds one compiled validator per schema name. Schema
// definitions are package-level values, so a name never changes shape.
var compiledSchemas = struct {
	sync.Mutex
	byName map[string]*jsonschema.Schema
}{byName: map[string]*jsonschema.Schema{}}

// checkContent rejects model output that is not JSON or does not satisfy
// s. A nil schema accepts anything.
func checkContent(s *Schema, content json.RawMessage) error {
	if s == nil {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(content))
	if err != nil {
		return &ErrInvalidResponse{Content: content, Err: fmt.Errorf("not JSON: %w", err)}
	}
	v, err := compileSchema(s)
	if err != nil {
		return &ErrInvalidResponse{Content: content, Err: err}
	}
	if err := v.Validate(doc); err != nil {
		return &ErrInvalidResponse{Content: content, Err: err}
	}
	return nil
}

func compileSchema(s *Schema) (*jsonschema.Schema, error) {
	compiledSchemas.Lock()
	defer compiledSchemas.Unlock()
	if v, ok := compiledSchemas.byName[s.Name]; ok {
		return v, nil
	}

	// Round-trip the Go map so number types match what the compiler expects.
	raw, err := json.Marshal(s.Definition)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.Name, err)
	}
	def, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.Name, err)
	}
	url := "mem://schemas/" + s.Name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, def); err != nil {
		return nil, fmt.Errorf("schema %s: %w", s.Name, err)
	}
	v, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", s.Name, err)
	}
	compiledSchemas.byName[s.Name] = v
	return v, nil
}
