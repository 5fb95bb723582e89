// Package agent models the PPO agent configuration document.
package agent

import (
	"fmt"

	"github.com/YARL-project/YARL/internal/schedule"
	"github.com/YARL-project/YARL/internal/spec"
)

// Config is the agent document. Schedule-valued fields accept a number, the
// array form ["linear", from, to] or the object form {type, from, to}.
type Config struct {
	Type string `json:"type"`

	Discount      float64           `json:"discount"`
	GAELambda     float64           `json:"gae_lambda"`
	ClipRatio     schedule.Schedule `json:"clip_ratio,omitzero"`
	WeightEntropy schedule.Schedule `json:"weight_entropy,omitzero"`

	SampleEpisodes        bool `json:"sample_episodes,omitempty"`
	StandardizeAdvantages bool `json:"standardize_advantages,omitempty"`

	MemorySpec  *MemorySpec `json:"memory_spec,omitempty"`
	ObserveSpec ObserveSpec `json:"observe_spec"`
	UpdateSpec  UpdateSpec  `json:"update_spec"`

	PreprocessingSpec []spec.Layer `json:"preprocessing_spec,omitempty"`
	NetworkSpec       []spec.Layer `json:"network_spec"`
	ValueFunctionSpec []spec.Layer `json:"value_function_spec,omitempty"`

	OptimizerSpec              *OptimizerSpec `json:"optimizer_spec,omitempty"`
	ValueFunctionOptimizerSpec *OptimizerSpec `json:"value_function_optimizer_spec,omitempty"`
}

// MemorySpec describes the experience memory. Only the ring buffer exists:
// a fixed-capacity circular store that evicts its oldest record when full.
type MemorySpec struct {
	Type     string     `json:"type"`
	Capacity spec.Count `json:"capacity"`
}

// ObserveSpec sizes the per-environment buffer that collects observations
// before they are inserted into memory.
type ObserveSpec struct {
	BufferSize spec.Count `json:"buffer_size"`
}

type UpdateSpec struct {
	UpdateMode        string `json:"update_mode"`
	DoUpdates         bool   `json:"do_updates"`
	UpdateInterval    int    `json:"update_interval"`
	StepsBeforeUpdate int    `json:"steps_before_update,omitempty"`
	BatchSize         int    `json:"batch_size"`
	NumIterations     int    `json:"num_iterations"`
	SampleSize        int    `json:"sample_size"`
}

type OptimizerSpec struct {
	Type         string            `json:"type"`
	LearningRate schedule.Schedule `json:"learning_rate"`
	ClipGradNorm *float64          `json:"clip_grad_norm,omitempty"`
	Scope        string            `json:"scope,omitempty"`
}

// Decode parses an agent document on top of Default, so absent fields keep
// their defaults while explicitly written values are kept as given.
func Decode(data []byte, strict bool) (*Config, error) {
	cfg := Default()
	if err := spec.DecodeJSON(data, cfg, strict); err != nil {
		return nil, fmt.Errorf("decode agent config: %w", err)
	}
	return cfg, nil
}

// Normalize fills in derived values: scopes for unnamed layers and the value
// function optimizer, which falls back to a copy of the policy optimizer.
// Generated scopes never collide with declared ones. A duplicate declared
// scope is returned as an error and the document is left to Validate.
func (c *Config) Normalize() error {
	var errs spec.Collector
	scopes := spec.Scopes{}
	for _, d := range c.DeclaredScopes() {
		errs.Add(scopes.Claim(d.Name, d.Path))
	}
	for _, group := range c.layerGroups() {
		for i := range group.layers {
			l := &group.layers[i]
			if l.Scope != "" {
				continue
			}
			name := l.Canonical()
			if name == "" {
				name = "layer"
			}
			l.Scope = scopes.Unique(name)
			errs.Add(scopes.Claim(l.Scope, spec.Join(group.name, i, "scope")))
		}
	}

	if len(c.ValueFunctionSpec) > 0 && c.ValueFunctionOptimizerSpec == nil && c.OptimizerSpec != nil {
		vf := *c.OptimizerSpec
		vf.Scope = "value-function-optimizer"
		c.ValueFunctionOptimizerSpec = &vf
	}
	return errs.Err()
}

type layerGroup struct {
	name   string
	layers []spec.Layer
}

func (c *Config) layerGroups() []layerGroup {
	return []layerGroup{
		{"preprocessing_spec", c.PreprocessingSpec},
		{"network_spec", c.NetworkSpec},
		{"value_function_spec", c.ValueFunctionSpec},
	}
}

// DeclaredScopes lists the explicitly written scopes in document order.
func (c *Config) DeclaredScopes() []spec.Declared {
	var out []spec.Declared
	for _, group := range c.layerGroups() {
		for i, l := range group.layers {
			if l.Scope != "" {
				out = append(out, spec.Declared{Name: l.Scope, Path: spec.Join(group.name, i, "scope")})
			}
		}
	}
	return out
}
