package worker

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/spec"
)

// dense is one fully connected layer: out = act(W x + b).
type dense struct {
	Scope      string      `json:"scope"`
	Activation string      `json:"activation"`
	W          [][]float64 `json:"w"` // [units][in]
	B          []float64   `json:"b"`
}

func newDense(scope, activation string, in, units int, rng *rand.Rand) dense {
	limit := math.Sqrt(6.0 / float64(in+units))
	w := make([][]float64, units)
	for i := range w {
		w[i] = make([]float64, in)
		for j := range w[i] {
			w[i][j] = (rng.Float64()*2 - 1) * limit
		}
	}
	return dense{Scope: scope, Activation: activation, W: w, B: make([]float64, units)}
}

func (d dense) forward(x []float64) []float64 {
	out := make([]float64, len(d.W))
	for i, row := range d.W {
		sum := d.B[i]
		for j, w := range row {
			sum += w * x[j]
		}
		out[i] = sum
	}
	return activate(d.Activation, out)
}

func forward(layers []dense, x []float64) []float64 {
	for _, l := range layers {
		x = l.forward(x)
	}
	return x
}

// Policy is a stochastic actor with a value head. Its trunk mirrors the
// agent's network_spec; the value head either runs its own stack from
// value_function_spec or shares the policy trunk.
type Policy struct {
	Trunk      []dense `json:"trunk"`
	Logits     dense   `json:"logits"`
	ValueTrunk []dense `json:"value_trunk,omitempty"`
	Value      dense   `json:"value"`
}

// NewPolicy builds a policy for observations of size obsDim and numActions
// discrete actions. Only dense layers can be executed here.
func NewPolicy(cfg *agent.Config, obsDim, numActions int, seed int64) (*Policy, error) {
	if obsDim <= 0 || numActions <= 0 {
		return nil, fmt.Errorf("%w: observation size %d, actions %d", spec.ErrInvalidValue, obsDim, numActions)
	}
	rng := rand.New(rand.NewSource(seed))

	trunk, width, err := buildStack("network_spec", cfg.NetworkSpec, obsDim, rng)
	if err != nil {
		return nil, err
	}
	p := &Policy{
		Trunk:  trunk,
		Logits: newDense("action-adapter", "linear", width, numActions, rng),
	}

	valueIn := width
	if len(cfg.ValueFunctionSpec) > 0 {
		p.ValueTrunk, valueIn, err = buildStack("value_function_spec", cfg.ValueFunctionSpec, obsDim, rng)
		if err != nil {
			return nil, err
		}
	}
	p.Value = newDense("value-function-output", "linear", valueIn, 1, rng)
	return p, nil
}

func buildStack(name string, layers []spec.Layer, in int, rng *rand.Rand) ([]dense, int, error) {
	out := make([]dense, 0, len(layers))
	for i, l := range layers {
		if l.Canonical() != spec.Dense {
			return nil, 0, fmt.Errorf("%s[%d]: %w: %q cannot run in a rollout policy", name, i, spec.ErrUnknownType, l.Type)
		}
		if l.Units <= 0 {
			return nil, 0, fmt.Errorf("%s[%d].units: %w: must be > 0, got %d", name, i, spec.ErrInvalidValue, l.Units)
		}
		act, ok := spec.CanonicalActivation(l.Activation)
		if !ok {
			return nil, 0, fmt.Errorf("%s[%d].activation: %w: %q", name, i, spec.ErrUnknownType, l.Activation)
		}
		out = append(out, newDense(l.Scope, act, in, l.Units, rng))
		in = l.Units
	}
	return out, in, nil
}

// Action returns chosen action, log-probability, and value estimate
func (p *Policy) Action(state []float64, rng *rand.Rand) (int, float64, float64) {
	probs := p.Probs(state)
	choice := sampleCategorical(probs, rng)
	logProb := math.Log(probs[choice] + 1e-8)
	return choice, logProb, p.ValueOf(state)
}

func (p *Policy) Probs(state []float64) []float64 {
	return softmax(p.Logits.forward(forward(p.Trunk, state)))
}

func (p *Policy) ValueOf(state []float64) float64 {
	hidden := forward(p.Trunk, state)
	if len(p.ValueTrunk) > 0 {
		hidden = forward(p.ValueTrunk, state)
	}
	return p.Value.forward(hidden)[0]
}

func activate(name string, xs []float64) []float64 {
	switch name {
	case "softmax":
		return softmax(xs)
	case "linear":
		return xs
	}
	for i, x := range xs {
		xs[i] = activation(name, x)
	}
	return xs
}

func activation(name string, x float64) float64 {
	switch name {
	case "relu":
		return math.Max(0, x)
	case "relu6":
		return math.Min(6, math.Max(0, x))
	case "tanh":
		return math.Tanh(x)
	case "sigmoid":
		return 1 / (1 + math.Exp(-x))
	case "softplus":
		return math.Log1p(math.Exp(x))
	case "elu":
		if x < 0 {
			return math.Expm1(x)
		}
		return x
	case "selu":
		const alpha, scale = 1.6732632423543772, 1.0507009873554805
		if x < 0 {
			return scale * alpha * math.Expm1(x)
		}
		return scale * x
	case "swish":
		return x / (1 + math.Exp(-x))
	case "lrelu":
		if x < 0 {
			return 0.2 * x
		}
		return x
	}
	return x
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	values := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		values[i] = math.Exp(v - maxLogit)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}
	return values
}

func sampleCategorical(probs []float64, rng *rand.Rand) int {
	threshold := rng.Float64()
	var cumulativeProb float64
	for i, prob := range probs {
		cumulativeProb += prob
		if threshold <= cumulativeProb {
			return i
		}
	}
	return len(probs) - 1
}
