// Package schema validates inbound webhook payloads against JSON Schema
// documents embedded in the binary.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed lifecycle.schema.json
var lifecycleSchema []byte

const lifecycleURL = "callrelay://schema/lifecycle.json"

// Validator checks decoded payloads against the embedded schemas.
// Schemas are compiled once, on first use.
type Validator struct {
	once      sync.Once
	lifecycle *jsonschema.Schema
	err       error
}

// NewValidator creates a new schema validator.
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLifecycle checks that doc carries the minimum fields of a
// subscription lifecycle event: a descriptor with id and targetUrl, and a
// tenant identifier.
func (v *Validator) ValidateLifecycle(doc any) error {
	v.once.Do(func() {
		v.lifecycle, v.err = compile(lifecycleURL, lifecycleSchema)
	})
	if v.err != nil {
		return fmt.Errorf("schema compilation error: %w", v.err)
	}
	return v.lifecycle.Validate(doc)
}

func compile(url string, raw []byte) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
