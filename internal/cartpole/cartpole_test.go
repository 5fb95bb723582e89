package cartpole

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEpisodeTerminates(t *testing.T) {
	env := NewEnv(rand.New(rand.NewSource(3)))
	var steps int
	for {
		_, reward, done := env.Step(1)
		steps++
		if done {
			assert.Equal(t, 0.0, reward, "constant push should topple the pole")
			break
		}
		assert.Equal(t, 1.0, reward)
		if steps > MaxSteps() {
			t.Fatal("episode never ended")
		}
	}
	assert.Less(t, steps, MaxSteps())
}

func TestResetIsSmall(t *testing.T) {
	env := NewEnv(rand.New(rand.NewSource(9)))
	for i := 0; i < 20; i++ {
		for _, v := range env.Reset().Vector() {
			assert.InDelta(t, 0, v, 0.05)
		}
		assert.Zero(t, env.Steps)
	}
}

func TestObservationSpace(t *testing.T) {
	assert.Equal(t, "float(4)[B]", ObservationSpace().String())
	assert.Len(t, State{}.Vector(), ObservationSpace().Size())
}
