// Package topology models the multi-stream network document: an input space
// plus an ordered list of call steps wiring named variables together.
package topology

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/YARL-project/YARL/internal/spec"
)

// InputsVar names the whole input space.
const InputsVar = "inputs"

// Document is the topology file.
type Document struct {
	InputSpace *Space `json:"input_space"`
	Layers     []Step `json:"layers"`
	Outputs    Vars   `json:"outputs,omitempty"`
}

// Step is one call: a layer applied to previously produced variables.
type Step struct {
	spec.Layer
	CallInputVars  Vars `json:"call_input_vars"`
	CallOutputVars Vars `json:"call_output_vars"`
}

// Vars is a list of variable names; a single name may be written as a string.
type Vars []string

func (v *Vars) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		*v = Vars{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("expected a variable name or a list of names: %w", err)
	}
	*v = many
	return nil
}

// Decode parses a topology document.
func Decode(data []byte, strict bool) (*Document, error) {
	var doc Document
	if err := spec.DecodeJSON(data, &doc, strict); err != nil {
		return nil, fmt.Errorf("decode topology: %w", err)
	}
	return &doc, nil
}

// DeclaredScopes lists the explicitly written step scopes.
func (d *Document) DeclaredScopes() []spec.Declared {
	var out []spec.Declared
	for i, s := range d.Layers {
		if s.Scope != "" {
			out = append(out, spec.Declared{Name: s.Scope, Path: spec.Join("layers", i, "scope")})
		}
	}
	return out
}
