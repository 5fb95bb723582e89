package agent

import (
	"github.com/YARL-project/YARL/internal/schedule"
	"github.com/YARL-project/YARL/internal/spec"
)

const (
	DefaultDiscount   = 0.98
	DefaultGAELambda  = 1.0
	DefaultClipRatio  = 0.2
	DefaultBufferSize = 1000
)

// Default returns the values an agent document starts from before decoding.
func Default() *Config {
	return &Config{
		Type:      "ppo",
		Discount:  DefaultDiscount,
		GAELambda: DefaultGAELambda,
		ClipRatio: schedule.Const(DefaultClipRatio),
		ObserveSpec: ObserveSpec{
			BufferSize: spec.CountOf(DefaultBufferSize),
		},
		UpdateSpec: DefaultUpdateSpec(),
	}
}

func DefaultUpdateSpec() UpdateSpec {
	return UpdateSpec{
		UpdateMode:     "time_steps",
		DoUpdates:      true,
		UpdateInterval: 4,
		BatchSize:      64,
		NumIterations:  10,
		SampleSize:     32,
	}
}
