package topology

import (
	"fmt"

	"github.com/YARL-project/YARL/internal/spec"
)

// InputNode is the producer index reported for input-space variables.
const InputNode = -1

var graphOps = map[string]bool{
	spec.Splitter:        true,
	spec.Reshape:         true,
	spec.HashBucket:      true,
	spec.EmbeddingLookup: true,
	spec.LSTM:            true,
	spec.Conv2D:          true,
	spec.Dense:           true,
	spec.Concat:          true,
}

type arity struct{ minIn, maxIn, minOut, maxOut int }

const many = -1

var arities = map[string]arity{
	spec.Splitter:        {1, 1, 1, many},
	spec.Reshape:         {1, 2, 1, 1},
	spec.HashBucket:      {1, 1, 1, 2},
	spec.EmbeddingLookup: {1, 1, 1, 1},
	spec.LSTM:            {1, 2, 1, 2},
	spec.Conv2D:          {1, 1, 1, 1},
	spec.Dense:           {1, 1, 1, 1},
	spec.Concat:          {2, many, 1, 1},
}

// Node is a resolved call step.
type Node struct {
	Index   int
	Type    string
	Scope   string
	Step    Step
	Inputs  []string
	Outputs []string
}

// Graph is a resolved topology: steps in declaration order, the variable
// graph between them and the space inferred for every variable.
type Graph struct {
	Nodes    []Node
	Spaces   map[string]Space
	Outputs  []string
	Warnings []string

	inputs    []string
	producer  map[string]int
	consumers map[string][]int
	order     []string
}

// Resolve walks the steps in declaration order. Each input variable must
// already exist, either in the input space or as an earlier step's output;
// no reordering is attempted. All violations are returned together.
func Resolve(doc *Document) (*Graph, error) {
	var errs spec.Collector
	g := &Graph{
		Spaces:    map[string]Space{},
		producer:  map[string]int{},
		consumers: map[string][]int{},
	}

	if doc.InputSpace == nil {
		errs.Addf("input_space", spec.ErrInvalidValue, "required")
	} else {
		in, err := doc.InputSpace.normalized()
		if err != nil {
			errs.Addf("input_space", spec.ErrInvalidValue, "%v", err)
		} else {
			g.define(InputsVar, InputNode, in)
			if in.Type == Dict {
				for _, key := range in.Keys() {
					if key == InputsVar {
						errs.Addf(spec.Join("input_space", "spaces", key), spec.ErrDuplicateVariable,
							"%q names the whole input space", key)
						continue
					}
					g.define(key, InputNode, *in.Spaces[key])
				}
			}
		}
	}
	if len(doc.Layers) == 0 {
		errs.Addf("layers", spec.ErrInvalidValue, "at least one step is required")
	}

	scopes := spec.Scopes{}
	for _, d := range doc.DeclaredScopes() {
		errs.Add(scopes.Claim(d.Name, d.Path))
	}

	for i, step := range doc.Layers {
		path := spec.Join("layers", i)
		node := Node{Index: i, Step: step, Inputs: step.CallInputVars, Outputs: step.CallOutputVars}

		spec.ValidateLayer(path, step.Layer, graphOps, &errs)
		node.Type = step.Canonical()
		node.Scope = step.Scope
		if node.Scope == "" {
			base := node.Type
			if base == "" {
				base = "step"
			}
			node.Scope = scopes.Unique(base)
			_ = scopes.Claim(node.Scope, path)
		}

		resolved := true
		inSpaces := make([]Space, len(step.CallInputVars))
		for j, name := range step.CallInputVars {
			p := spec.Join(path, "call_input_vars", j)
			if name == "" {
				errs.Addf(p, spec.ErrInvalidValue, "empty variable name")
				resolved = false
				continue
			}
			if _, ok := g.producer[name]; !ok {
				errs.Addf(p, spec.ErrDanglingReference, "%q is not produced by an earlier step nor part of input_space", name)
				resolved = false
				continue
			}
			if !contains(g.consumers[name], i) {
				g.consumers[name] = append(g.consumers[name], i)
			}
			inSpaces[j] = g.Spaces[name]
		}

		if a, ok := arities[node.Type]; ok {
			resolved = checkArity(path, node.Type, a, step, &errs) && resolved
		}

		var outSpaces []Space
		if resolved && graphOps[node.Type] {
			var err error
			outSpaces, err = infer(step, inSpaces)
			if err != nil {
				errs.Addf(path, spec.ErrShapeMismatch, "%s %q: %v", node.Type, node.Scope, err)
			}
		}

		for j, name := range step.CallOutputVars {
			p := spec.Join(path, "call_output_vars", j)
			if name == "" {
				errs.Addf(p, spec.ErrInvalidValue, "empty variable name")
				continue
			}
			if prev, ok := g.producer[name]; ok {
				errs.Addf(p, spec.ErrDuplicateVariable, "%q already produced by %s", name, describe(prev))
				continue
			}
			var sp Space
			if j < len(outSpaces) {
				sp = outSpaces[j]
			}
			g.define(name, i, sp)
		}
		g.Nodes = append(g.Nodes, node)
	}

	g.resolveOutputs(doc.Outputs, &errs)
	if err := errs.Err(); err != nil {
		return g, err
	}
	return g, nil
}

func (g *Graph) define(name string, node int, sp Space) {
	g.producer[name] = node
	g.Spaces[name] = sp
	if node == InputNode {
		g.inputs = append(g.inputs, name)
	} else {
		g.order = append(g.order, name)
	}
}

func (g *Graph) resolveOutputs(declared Vars, errs *spec.Collector) {
	if len(declared) == 0 {
		if n := len(g.Nodes); n > 0 {
			last := g.Nodes[n-1]
			for _, name := range last.Outputs {
				if g.producer[name] == last.Index {
					g.Outputs = append(g.Outputs, name)
				}
			}
		}
	} else {
		for i, name := range declared {
			if _, ok := g.producer[name]; !ok {
				errs.Addf(spec.Join("outputs", i), spec.ErrDanglingReference, "%q is never produced", name)
				continue
			}
			g.Outputs = append(g.Outputs, name)
		}
	}

	for _, name := range g.Unused() {
		g.Warnings = append(g.Warnings, fmt.Sprintf("variable %q produced by %s is never used", name, describe(g.producer[name])))
	}
}

func checkArity(path, typ string, a arity, step Step, errs *spec.Collector) bool {
	ok := true
	nIn, nOut := len(step.CallInputVars), len(step.CallOutputVars)
	if nIn < a.minIn || (a.maxIn != many && nIn > a.maxIn) {
		errs.Addf(spec.Join(path, "call_input_vars"), spec.ErrInvalidValue, "%s takes %s inputs, got %d", typ, bounds(a.minIn, a.maxIn), nIn)
		ok = false
	}
	minOut, maxOut := a.minOut, a.maxOut
	if typ == spec.Splitter && len(step.OutputOrder) > 0 {
		minOut, maxOut = len(step.OutputOrder), len(step.OutputOrder)
	}
	if nOut < minOut || (maxOut != many && nOut > maxOut) {
		errs.Addf(spec.Join(path, "call_output_vars"), spec.ErrInvalidValue, "%s produces %s outputs, got %d", typ, bounds(minOut, maxOut), nOut)
		ok = false
	}
	return ok
}

func bounds(lo, hi int) string {
	switch {
	case hi == many:
		return fmt.Sprintf("at least %d", lo)
	case lo == hi:
		return fmt.Sprintf("%d", lo)
	default:
		return fmt.Sprintf("%d to %d", lo, hi)
	}
}

func describe(node int) string {
	if node == InputNode {
		return "input_space"
	}
	return fmt.Sprintf("layers[%d]", node)
}

func contains(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Producer returns the index of the step producing name, or InputNode.
func (g *Graph) Producer(name string) (int, bool) {
	n, ok := g.producer[name]
	return n, ok
}

// Consumers returns the indices of the steps reading name.
func (g *Graph) Consumers(name string) []int {
	return g.consumers[name]
}

// Variables returns input-space variables followed by step outputs in the
// order they were produced.
func (g *Graph) Variables() []string {
	out := make([]string, 0, len(g.inputs)+len(g.order))
	out = append(out, g.inputs...)
	return append(out, g.order...)
}

// Unused returns step outputs that are neither consumed nor network outputs.
func (g *Graph) Unused() []string {
	isOutput := make(map[string]bool, len(g.Outputs))
	for _, name := range g.Outputs {
		isOutput[name] = true
	}
	var out []string
	for _, name := range g.order {
		if len(g.consumers[name]) == 0 && !isOutput[name] {
			out = append(out, name)
		}
	}
	return out
}

// Scopes returns the step scopes in execution order.
func (g *Graph) Scopes() []string {
	out := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Scope
	}
	return out
}
