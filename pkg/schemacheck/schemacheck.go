// Package schemacheck validates decoded documents against JSON schemas.
//
// It wraps santhosh-tekuri/jsonschema with two conveniences: schemas are
// compiled once and reused, and documents decoded from YAML are
// normalized through a JSON round trip so decoder type differences
// (int vs float64, for one) never produce spurious violations.
package schemacheck

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Checker is a compiled schema ready to validate documents. Safe for
// concurrent use.
type Checker struct {
	schema *jsonschema.Schema
}

// Compile builds a checker from schema source. name appears in error
// messages and resolves internal schema references.
func Compile(name string, schema []byte) (*Checker, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	s, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return &Checker{schema: s}, nil
}

// MustCompile is Compile for schemas known at build time; it panics when
// the schema does not compile.
func MustCompile(name string, schema []byte) *Checker {
	c, err := Compile(name, schema)
	if err != nil {
		panic(err)
	}
	return c
}

// Validate checks a decoded document against the schema. The document may
// come from any decoder; non-JSON-native values are normalized first.
// Violations (which unwraps to a per-leaf list) reports schema failures;
// other errors mean the document could not be checked at all.
func (c *Checker) Validate(doc interface{}) error {
	normalized, err := normalize(doc)
	if err != nil {
		return err
	}
	if err := c.schema.Validate(normalized); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return Violations(flatten(ve))
		}
		return err
	}
	return nil
}

// ValidateJSON checks raw JSON bytes against the schema.
func (c *Checker) ValidateJSON(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return c.Validate(doc)
}

func normalize(doc interface{}) (interface{}, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("document is not representable as JSON: %w", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// Violations lists the leaf failures of one validation run, each in
// "location: message" form.
type Violations []string

func (v Violations) Error() string {
	switch len(v) {
	case 0:
		return "schema violation"
	case 1:
		return v[0]
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d schema violations:", len(v))
	for _, s := range v {
		sb.WriteString("\n  ")
		sb.WriteString(s)
	}
	return sb.String()
}

// flatten walks the cause tree and keeps only the leaves, which carry the
// actionable messages; intermediate nodes just restate their children.
func flatten(err *jsonschema.ValidationError) []string {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{fmt.Sprintf("%s: %s", loc, err.Message)}
	}
	var out []string
	for _, cause := range err.Causes {
		out = append(out, flatten(cause)...)
	}
	return out
}
