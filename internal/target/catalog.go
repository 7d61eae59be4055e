// Package target implements the client side of a stress run: it turns
// operation descriptors into authenticated HTTP requests against the
// system under stress and classifies what comes back.
package target

import (
	"strconv"
	"strings"

	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/stress"
)

// OperationSpec is the request template behind one operation kind.
type OperationSpec struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string

	// Expect holds statuses the scenario declared expected for this
	// operation, on top of the standard classification.
	Expect map[int]bool
}

// Catalog maps operation kinds to their request templates.
type Catalog map[string]OperationSpec

// BuildCatalog indexes a scenario's operations by name.
func BuildCatalog(sc *config.Scenario) Catalog {
	cat := make(Catalog, len(sc.Operations))
	for _, op := range sc.Operations {
		spec := OperationSpec{
			Method:  strings.ToUpper(op.Request.Method),
			Path:    op.Request.Path,
			Body:    op.Request.Body,
			Headers: op.Request.Headers,
		}
		if len(op.Request.Expect) > 0 {
			spec.Expect = make(map[int]bool, len(op.Request.Expect))
			for _, status := range op.Request.Expect {
				spec.Expect[status] = true
			}
		}
		cat[op.Name] = spec
	}
	return cat
}

// render substitutes {{name}} placeholders in a template. Descriptor
// variables win over operation params, which win over run variables, so
// a scenario can shadow the built-ins deliberately but not by accident.
func render(template string, d stress.Descriptor, runVars map[string]string) string {
	if !strings.Contains(template, "{{") {
		return template
	}
	out := template
	out = strings.ReplaceAll(out, "{{target}}", d.Target)
	out = strings.ReplaceAll(out, "{{seq}}", strconv.FormatUint(d.Seq, 10))
	for k, v := range d.Params {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	for k, v := range runVars {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
