// Package cartpole is the classic pole-balancing environment used to drive
// rollouts against an agent configuration.
package cartpole

import (
	"math"
	"math/rand"

	"github.com/YARL-project/YARL/internal/topology"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
	maxSteps       = 500

	// NumActions: push left (0) or right (1).
	NumActions = 2
)

type State struct {
	X        float64 `json:"x"`
	XDot     float64 `json:"x_dot"`
	Theta    float64 `json:"theta"`
	ThetaDot float64 `json:"theta_dot"`
}

// Vector flattens the state in observation order.
func (s State) Vector() []float64 {
	return []float64{s.X, s.XDot, s.Theta, s.ThetaDot}
}

// ObservationSpace is the batched float space observations live in.
func ObservationSpace() topology.Space {
	return topology.Space{Type: topology.Float, Shape: []int{4}, AddBatchRank: true}
}

type Env struct {
	State State
	Steps int
	Rand  *rand.Rand
}

func NewEnv(rng *rand.Rand) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	env := &Env{Rand: rng}
	env.Reset()
	return env
}

func (e *Env) Reset() State {
	jitter := func() float64 { return e.Rand.Float64()*0.1 - 0.05 }
	e.State = State{X: jitter(), XDot: jitter(), Theta: jitter(), ThetaDot: jitter()}
	e.Steps = 0
	return e.State
}

// Step applies one action and returns the next state, the reward and whether
// the episode ended. Falling over or leaving the track yields reward 0.
func (e *Env) Step(action int) (State, float64, bool) {
	force := forceMax
	if action == 0 {
		force = -forceMax
	}

	s := e.State
	cosTheta, sinTheta := math.Cos(s.Theta), math.Sin(s.Theta)

	temp := (force + poleMassLength*s.ThetaDot*s.ThetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	e.State = State{
		X:        s.X + tau*s.XDot,
		XDot:     s.XDot + tau*xAcc,
		Theta:    s.Theta + tau*s.ThetaDot,
		ThetaDot: s.ThetaDot + tau*thetaAcc,
	}
	e.Steps++

	failed := math.Abs(e.State.X) > xThreshold || math.Abs(e.State.Theta) > thetaThreshold
	if failed {
		return e.State, 0.0, true
	}
	return e.State, 1.0, e.Steps >= maxSteps
}

func MaxSteps() int {
	return maxSteps
}
