package worker

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/buffer"
	"github.com/YARL-project/YARL/internal/spec"
)

func testAgent(t *testing.T) *agent.Config {
	t.Helper()
	cfg := agent.Default()
	cfg.ObserveSpec.BufferSize = spec.CountOf(8)
	cfg.NetworkSpec = []spec.Layer{
		{Type: "dense", Units: 16, Activation: "tanh", Scope: "hidden1"},
		{Type: "dense", Units: 8, Activation: "relu", Scope: "hidden2"},
	}
	cfg.ValueFunctionSpec = []spec.Layer{{Type: "dense", Units: 4, Activation: "tanh", Scope: "vf"}}
	return cfg
}

func TestPolicyShapesFollowNetworkSpec(t *testing.T) {
	p, err := NewPolicy(testAgent(t), 4, 2, 1)
	require.NoError(t, err)

	require.Len(t, p.Trunk, 2)
	assert.Len(t, p.Trunk[0].W, 16)
	assert.Len(t, p.Trunk[0].W[0], 4)
	assert.Len(t, p.Trunk[1].W[0], 16)
	assert.Len(t, p.Logits.W, 2)
	assert.Len(t, p.Logits.W[0], 8)
	require.Len(t, p.ValueTrunk, 1)
	assert.Len(t, p.Value.W[0], 4)

	probs := p.Probs([]float64{0.01, -0.02, 0.03, 0})
	assert.InDelta(t, 1.0, probs[0]+probs[1], 1e-9)
}

func TestPolicyIsSeeded(t *testing.T) {
	a, err := NewPolicy(testAgent(t), 4, 2, 42)
	require.NoError(t, err)
	b, err := NewPolicy(testAgent(t), 4, 2, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	state := []float64{0.1, 0.2, -0.1, 0}
	assert.Equal(t, a.ValueOf(state), b.ValueOf(state))
}

func TestPolicySharesTrunkWithoutValueFunction(t *testing.T) {
	cfg := testAgent(t)
	cfg.ValueFunctionSpec = nil
	p, err := NewPolicy(cfg, 4, 2, 1)
	require.NoError(t, err)
	assert.Empty(t, p.ValueTrunk)
	assert.Len(t, p.Value.W[0], 8)
}

func TestPolicyRejectsNonDense(t *testing.T) {
	cfg := testAgent(t)
	cfg.NetworkSpec = append(cfg.NetworkSpec, spec.Layer{Type: "lstm", Units: 4})
	_, err := NewPolicy(cfg, 4, 2, 1)
	require.ErrorIs(t, err, spec.ErrUnknownType)
	assert.Contains(t, err.Error(), "network_spec[2]")
}

func TestPolicyFromPongConfig(t *testing.T) {
	data, err := os.ReadFile("../../configs/ppo_agent_for_pong.json")
	require.NoError(t, err)
	cfg, err := agent.Decode(data, true)
	require.NoError(t, err)

	p, err := NewPolicy(cfg, 4, 2, 7)
	require.NoError(t, err)
	action, logProb, _ := p.Action([]float64{0, 0, 0, 0}, rand.New(rand.NewSource(1)))
	assert.Contains(t, []int{0, 1}, action)
	assert.Less(t, logProb, 0.0)
}

func TestActivations(t *testing.T) {
	assert.Equal(t, 0.0, activation("relu", -1))
	assert.Equal(t, 6.0, activation("relu6", 10))
	assert.InDelta(t, 0.5, activation("sigmoid", 0), 1e-12)
	assert.InDelta(t, -0.2, activation("lrelu", -1), 1e-12)
	assert.Equal(t, 3.0, activation("unknown", 3))
	assert.Equal(t, []float64{1, 2}, activate("linear", []float64{1, 2}))
}

func TestObserveBufferFlushesWhenFull(t *testing.T) {
	o := NewObserveBuffer("w", 3, 2)

	_, ok := o.Observe(1, buffer.Transition{Reward: 1})
	assert.False(t, ok)
	batch, ok := o.Observe(1, buffer.Transition{Reward: 1})
	require.True(t, ok)
	assert.Len(t, batch.Transitions, 2)
	assert.Equal(t, 3, batch.EnvID)
	assert.Equal(t, "w", batch.WorkerID)
	assert.Zero(t, o.Len())
}

func TestObserveBufferFlushesOnTerminal(t *testing.T) {
	o := NewObserveBuffer("w", 0, 10)
	o.Observe(4, buffer.Transition{Reward: 1})
	batch, ok := o.Observe(4, buffer.Transition{Terminal: true})
	require.True(t, ok)
	assert.Equal(t, 4, batch.EpisodeID)
	assert.True(t, batch.Transitions[1].Terminal)

	_, ok = o.Flush()
	assert.False(t, ok)
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (c *countingRecorder) RecordEnqueue(_, _ int, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, outcome)
}

func TestRunnerPostsObserveBatches(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []buffer.InsertRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/enqueue", r.URL.Path)
		var req buffer.InsertRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		requests = append(requests, req)
		n := len(requests)
		mu.Unlock()
		if n == 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	rec := &countingRecorder{}
	r := &Runner{
		WorkerID:          "w-1",
		BufferURL:         srv.URL,
		Agent:             testAgent(t),
		NumEnvs:           2,
		BatchesPerRequest: 2,
		MaxRequests:       3,
		Seed:              5,
		Backoff:           time.Millisecond,
		Client:            srv.Client(),
		Recorder:          rec,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, r.Run(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, requests, 3)
	for _, req := range requests {
		assert.Len(t, req.Batches, 2)
		for _, b := range req.Batches {
			assert.Equal(t, "w-1", b.WorkerID)
			require.NotEmpty(t, b.Transitions)
			assert.LessOrEqual(t, len(b.Transitions), 8)
			last := b.Transitions[len(b.Transitions)-1]
			assert.True(t, len(b.Transitions) == 8 || last.Terminal)
			assert.Len(t, last.State, 4)
		}
	}
	assert.Equal(t, []string{OutcomeAccepted, OutcomeThrottled, OutcomeAccepted}, rec.outcomes)
}

func TestRunnerStopsOnCancel(t *testing.T) {
	r := &Runner{
		BufferURL: "http://127.0.0.1:0",
		Agent:     testAgent(t),
		Backoff:   time.Hour,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.Run(ctx), context.Canceled)
}

func TestRunnerRequiresAgent(t *testing.T) {
	assert.Error(t, (&Runner{}).Run(context.Background()))
}
