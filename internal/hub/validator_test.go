package hub

import "testing"

func TestValidateSchemaDocument(t *testing.T) {
	if err := ValidateSchemaDocument(`{"type":"object"}`); err != nil {
		t.Fatalf("expected a valid schema to pass, got %v", err)
	}
	if err := ValidateSchemaDocument(`{not json`); err == nil {
		t.Fatal("expected malformed JSON to fail")
	}
}

func TestSchemaCacheValidateRecordHead(t *testing.T) {
	c := newSchemaCache()
	schemaDoc := `{"type":"object","required":["name"],"properties":{"name":{"type":"string"}}}`

	if err := c.validateRecordHead(schemaDoc, nil); err != nil {
		t.Fatalf("expected nil head to skip validation, got %v", err)
	}

	if err := c.validateRecordHead(schemaDoc, map[string]interface{}{"name": "ok"}); err != nil {
		t.Fatalf("expected valid head to pass, got %v", err)
	}

	if err := c.validateRecordHead(schemaDoc, map[string]interface{}{"other": "field"}); err == nil {
		t.Fatal("expected a head missing the required field to fail validation")
	}

	compiledA, err := c.compile(schemaDoc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	compiledB, err := c.compile(schemaDoc)
	if err != nil {
		t.Fatalf("compile again: %v", err)
	}
	if compiledA != compiledB {
		t.Fatal("expected the cache to return the same compiled schema for the same document")
	}
}
