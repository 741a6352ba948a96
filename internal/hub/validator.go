package hub

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles and caches JSON Schema Draft-04 validators keyed by
// their raw schema document, so repeated Apply calls against the same
// network schema don't recompile it every time.
type schemaCache struct {
	mu    sync.Mutex
	byDoc map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{byDoc: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) compile(schemaDoc string) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if compiled, ok := c.byDoc[schemaDoc]; ok {
		return compiled, nil
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft4
	if err := compiler.AddResource("network-schema.json", strings.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile("network-schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	c.byDoc[schemaDoc] = compiled
	return compiled, nil
}

// validateRecordHead validates head against the network's JSON Schema
// Draft-04 document. A nil head is never validated (deleted records skip
// validation per 4.B).
func (c *schemaCache) validateRecordHead(schemaDoc string, head map[string]interface{}) error {
	if head == nil {
		return nil
	}
	compiled, err := c.compile(schemaDoc)
	if err != nil {
		return err
	}

	// Round-trip through JSON so numeric types match what the validator
	// expects (json.Number vs float64 mismatches are a common source of
	// false validation failures when the head was built up in Go code
	// rather than decoded fresh off the wire).
	raw, err := json.Marshal(head)
	if err != nil {
		return fmt.Errorf("marshal record head: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("unmarshal record head: %w", err)
	}

	if err := compiled.Validate(doc); err != nil {
		return err
	}
	return nil
}

// ValidateSchemaDocument compiles schemaDoc to confirm it is a well-formed
// JSON Schema Draft-04 document, as required of Network.Schema (section 3).
func ValidateSchemaDocument(schemaDoc string) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft4
	if err := compiler.AddResource("candidate-schema.json", strings.NewReader(schemaDoc)); err != nil {
		return err
	}
	_, err := compiler.Compile("candidate-schema.json")
	return err
}
