package schemacheck

import (
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

const testSchema = `{
	"type": "object",
	"required": ["name", "count"],
	"additionalProperties": false,
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"count": {"type": "integer", "minimum": 1},
		"tags": {"type": "array", "items": {"type": "string"}}
	}
}`

func TestCompileRejectsBadSchema(t *testing.T) {
	if _, err := Compile("bad.json", []byte(`{"type": 42}`)); err == nil {
		t.Error("Compile() accepted a schema with a non-string type")
	}
	if _, err := Compile("bad.json", []byte(`{not json`)); err == nil {
		t.Error("Compile() accepted malformed JSON")
	}
}

func TestValidateJSON(t *testing.T) {
	c := MustCompile("test.json", []byte(testSchema))

	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"valid", `{"name": "a", "count": 3}`, false},
		{"valid with tags", `{"name": "a", "count": 3, "tags": ["x"]}`, false},
		{"missing required", `{"name": "a"}`, true},
		{"wrong type", `{"name": "a", "count": "three"}`, true},
		{"below minimum", `{"name": "a", "count": 0}`, true},
		{"unknown property", `{"name": "a", "count": 1, "extra": true}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.ValidateJSON([]byte(tt.doc))
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateYAMLDecodedDocument(t *testing.T) {
	c := MustCompile("test.json", []byte(testSchema))

	// YAML decodes integers as int, not float64; normalization must absorb
	// the difference.
	var doc interface{}
	if err := yaml.Unmarshal([]byte("name: a\ncount: 3\n"), &doc); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if err := c.Validate(doc); err != nil {
		t.Errorf("Validate() error = %v for a valid YAML document", err)
	}
}

func TestViolationsListsEveryLeaf(t *testing.T) {
	c := MustCompile("test.json", []byte(testSchema))

	err := c.ValidateJSON([]byte(`{"count": 0, "tags": [1]}`))
	if err == nil {
		t.Fatal("ValidateJSON() = nil for a document with three violations")
	}
	var v Violations
	if !errors.As(err, &v) {
		t.Fatalf("error type = %T, want Violations", err)
	}
	if len(v) < 3 {
		t.Errorf("Violations carries %d entries (%v), want >= 3", len(v), v)
	}
	msg := err.Error()
	for _, frag := range []string{"count", "tags", "name"} {
		if !strings.Contains(msg, frag) {
			t.Errorf("Error() = %q, want mention of %q", msg, frag)
		}
	}
}
