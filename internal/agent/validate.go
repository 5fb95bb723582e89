package agent

import (
	"math"
	"strings"

	"github.com/YARL-project/YARL/internal/spec"
)

var agentTypes = map[string]bool{"ppo": true, "ppo-agent": true, "ppoagent": true}

var memoryTypes = map[string]bool{"ring-buffer": true, "ringbuffer": true}

var optimizerTypes = map[string]bool{
	"adam":             true,
	"nadam":            true,
	"sgd":              true,
	"gradient-descent": true,
	"rmsprop":          true,
	"adagrad":          true,
	"adadelta":         true,
}

var updateModes = map[string]bool{"time_steps": true, "episodes": true}

// networkLayers are the layer types a sequential network_spec may contain.
var networkLayers = map[string]bool{
	spec.Dense:           true,
	spec.Conv2D:          true,
	spec.LSTM:            true,
	spec.Reshape:         true,
	spec.EmbeddingLookup: true,
}

var preprocessors = map[string]bool{
	spec.Reshape:           true,
	spec.ConvertType:       true,
	spec.Divide:            true,
	spec.Multiply:          true,
	spec.Clip:              true,
	spec.Grayscale:         true,
	spec.ImageResize:       true,
	spec.Sequence:          true,
	spec.MovingStandardize: true,
}

func normalizeName(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
}

// Validate checks the whole document and returns every violation found,
// aggregated into one error.
func (c *Config) Validate() error {
	var errs spec.Collector

	if !agentTypes[normalizeName(c.Type)] {
		errs.Addf("type", spec.ErrUnknownType, "%q (supported: ppo)", c.Type)
	}
	unitInterval("discount", c.Discount, &errs)
	unitInterval("gae_lambda", c.GAELambda, &errs)

	if !c.ClipRatio.IsSet() {
		errs.Addf("clip_ratio", spec.ErrInvalidValue, "required")
	}
	c.ClipRatio.Validate("clip_ratio", &errs)
	c.ClipRatio.InRange("clip_ratio", 0, 1, &errs)
	c.WeightEntropy.Validate("weight_entropy", &errs)
	c.WeightEntropy.InRange("weight_entropy", 0, math.Inf(1), &errs)

	capacity := c.validateMemory(&errs)
	c.ObserveSpec.BufferSize.Check("observe_spec.buffer_size", &errs)
	c.validateUpdate(capacity, &errs)

	scopes := spec.Scopes{}
	validateLayers("preprocessing_spec", c.PreprocessingSpec, preprocessors, scopes, &errs)
	if len(c.NetworkSpec) == 0 {
		errs.Addf("network_spec", spec.ErrInvalidValue, "at least one layer is required")
	}
	validateLayers("network_spec", c.NetworkSpec, networkLayers, scopes, &errs)
	validateLayers("value_function_spec", c.ValueFunctionSpec, networkLayers, scopes, &errs)

	if c.OptimizerSpec == nil {
		errs.Addf("optimizer_spec", spec.ErrInvalidValue, "required")
	} else {
		validateOptimizer("optimizer_spec", c.OptimizerSpec, &errs)
	}
	if c.ValueFunctionOptimizerSpec != nil {
		validateOptimizer("value_function_optimizer_spec", c.ValueFunctionOptimizerSpec, &errs)
	}
	return errs.Err()
}

func (c *Config) validateMemory(errs *spec.Collector) int {
	if c.MemorySpec == nil {
		errs.Addf("memory_spec", spec.ErrInvalidValue, "required")
		return 0
	}
	if !memoryTypes[normalizeName(c.MemorySpec.Type)] {
		errs.Addf("memory_spec.type", spec.ErrUnknownType, "%q (supported: ring-buffer)", c.MemorySpec.Type)
	}
	if !c.MemorySpec.Capacity.Check("memory_spec.capacity", errs) {
		return 0
	}
	return c.MemorySpec.Capacity.N
}

func (c *Config) validateUpdate(capacity int, errs *spec.Collector) {
	u := c.UpdateSpec
	if !updateModes[u.UpdateMode] {
		errs.Addf("update_spec.update_mode", spec.ErrUnknownType, "%q (supported: time_steps, episodes)", u.UpdateMode)
	}
	positive("update_spec.update_interval", u.UpdateInterval, errs)
	positive("update_spec.batch_size", u.BatchSize, errs)
	positive("update_spec.num_iterations", u.NumIterations, errs)
	positive("update_spec.sample_size", u.SampleSize, errs)
	if u.StepsBeforeUpdate < 0 {
		errs.Addf("update_spec.steps_before_update", spec.ErrInvalidValue, "must be >= 0, got %d", u.StepsBeforeUpdate)
	}
	if u.SampleSize > 0 && u.BatchSize > 0 && u.SampleSize > u.BatchSize {
		errs.Addf("update_spec.sample_size", spec.ErrInvalidValue, "%d exceeds batch_size %d", u.SampleSize, u.BatchSize)
	}
	if capacity > 0 && u.BatchSize > capacity {
		errs.Addf("update_spec.batch_size", spec.ErrInvalidValue, "%d exceeds memory_spec.capacity %d", u.BatchSize, capacity)
	}
}

func validateLayers(name string, layers []spec.Layer, allowed map[string]bool, scopes spec.Scopes, errs *spec.Collector) {
	for i, l := range layers {
		path := spec.Join(name, i)
		spec.ValidateLayer(path, l, allowed, errs)
		errs.Add(scopes.Claim(l.Scope, spec.Join(path, "scope")))
	}
}

func validateOptimizer(path string, o *OptimizerSpec, errs *spec.Collector) {
	if !optimizerTypes[normalizeName(o.Type)] {
		errs.Addf(spec.Join(path, "type"), spec.ErrUnknownType, "%q", o.Type)
	}
	lrPath := spec.Join(path, "learning_rate")
	if !o.LearningRate.IsSet() {
		errs.Addf(lrPath, spec.ErrInvalidValue, "required")
	}
	o.LearningRate.Validate(lrPath, errs)
	o.LearningRate.InRange(lrPath, 0, math.Inf(1), errs)
	if o.LearningRate.IsSet() && o.LearningRate.Err() == nil && o.LearningRate.From == 0 {
		errs.Addf(lrPath, spec.ErrInvalidValue, "initial learning rate must be > 0")
	}
	if o.ClipGradNorm != nil && *o.ClipGradNorm <= 0 {
		errs.Addf(spec.Join(path, "clip_grad_norm"), spec.ErrInvalidValue, "must be > 0, got %v", *o.ClipGradNorm)
	}
}

func unitInterval(path string, v float64, errs *spec.Collector) {
	if math.IsNaN(v) || v < 0 || v > 1 {
		errs.Addf(path, spec.ErrInvalidValue, "must be in [0, 1], got %v", v)
	}
}

func positive(path string, v int, errs *spec.Collector) {
	if v <= 0 {
		errs.Addf(path, spec.ErrInvalidValue, "must be > 0, got %d", v)
	}
}
