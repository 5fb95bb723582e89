// Package worker drives cart-pole rollouts with a policy shaped by an agent
// configuration and ships observe-buffer batches to the replay memory.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/YARL-project/YARL/internal/agent"
	"github.com/YARL-project/YARL/internal/buffer"
	"github.com/YARL-project/YARL/internal/cartpole"
)

// Enqueue outcomes passed to a Recorder.
const (
	OutcomeAccepted  = "accepted"
	OutcomeThrottled = "throttled"
	OutcomeFailed    = "failed"
)

// Recorder is notified after every enqueue attempt.
type Recorder interface {
	RecordEnqueue(batches, transitions int, outcome string)
}

type Runner struct {
	WorkerID  string
	BufferURL string
	Agent     *agent.Config
	NumEnvs   int
	// BatchesPerRequest is how many flushed observe batches go into one
	// /enqueue request.
	BatchesPerRequest int
	// MaxRequests stops the runner after that many enqueue attempts; 0 runs
	// until the context is cancelled.
	MaxRequests int
	Seed        int64
	Backoff     time.Duration
	Client      *http.Client
	Recorder    Recorder
	Logger      *zap.Logger
}

func (r *Runner) Run(ctx context.Context) error {
	if r.Agent == nil {
		return errors.New("agent config is required")
	}
	if r.NumEnvs <= 0 {
		r.NumEnvs = 1
	}
	if r.BatchesPerRequest <= 0 {
		r.BatchesPerRequest = r.NumEnvs
	}
	if r.Backoff <= 0 {
		r.Backoff = 500 * time.Millisecond
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "rollout"), zap.String("worker_id", r.WorkerID))

	policy, err := NewPolicy(r.Agent, cartpole.ObservationSpace().Size(), cartpole.NumActions, r.Seed)
	if err != nil {
		return fmt.Errorf("build policy: %w", err)
	}

	rng := rand.New(rand.NewSource(r.Seed))
	envs := make([]*cartpole.Env, r.NumEnvs)
	observers := make([]*ObserveBuffer, r.NumEnvs)
	episodes := make([]int, r.NumEnvs)
	var episodeID int
	for i := range envs {
		envs[i] = cartpole.NewEnv(rand.New(rand.NewSource(r.Seed + int64(i) + 1)))
		observers[i] = NewObserveBuffer(r.WorkerID, i, r.Agent.ObserveSpec.BufferSize.N)
		episodeID++
		episodes[i] = episodeID
	}
	logger.Info("rollout started",
		zap.Int("envs", r.NumEnvs),
		zap.Int("observe_buffer_size", r.Agent.ObserveSpec.BufferSize.N),
		zap.String("buffer_url", r.BufferURL))

	pending := make([]buffer.Batch, 0, r.BatchesPerRequest)
	requests := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		for i, env := range envs {
			obs := env.State.Vector()
			action, logProb, value := policy.Action(obs, rng)
			next, reward, done := env.Step(action)

			batch, flushed := observers[i].Observe(episodes[i], buffer.Transition{
				State:     obs,
				Action:    action,
				Reward:    reward,
				Terminal:  done,
				NextState: next.Vector(),
				LogProb:   logProb,
				Value:     value,
			})
			if flushed {
				pending = append(pending, batch)
			}
			if done {
				env.Reset()
				episodeID++
				episodes[i] = episodeID
			}
		}

		if len(pending) < r.BatchesPerRequest {
			continue
		}

		req := buffer.InsertRequest{
			BatchSentAtMs: time.Now().UnixMilli(),
			Batches:       pending[:r.BatchesPerRequest:r.BatchesPerRequest],
		}
		transitions := countTransitions(req.Batches)
		pending = append(make([]buffer.Batch, 0, r.BatchesPerRequest), pending[r.BatchesPerRequest:]...)
		requests++

		status, err := postJSON(ctx, client, r.BufferURL+"/enqueue", req)
		switch {
		case err != nil:
			logger.Warn("enqueue failed", zap.Error(err))
			r.record(len(req.Batches), transitions, OutcomeFailed)
			if !sleep(ctx, r.Backoff) {
				return ctx.Err()
			}
		case status == http.StatusTooManyRequests:
			logger.Debug("enqueue throttled", zap.Int("batches", len(req.Batches)))
			r.record(len(req.Batches), transitions, OutcomeThrottled)
			if !sleep(ctx, r.Backoff) {
				return ctx.Err()
			}
		case status >= 300:
			logger.Warn("enqueue rejected", zap.Int("status", status))
			r.record(len(req.Batches), transitions, OutcomeFailed)
		default:
			r.record(len(req.Batches), transitions, OutcomeAccepted)
		}

		if r.MaxRequests > 0 && requests >= r.MaxRequests {
			logger.Info("rollout finished", zap.Int("requests", requests))
			return nil
		}
	}
}

func (r *Runner) record(batches, transitions int, outcome string) {
	if r.Recorder != nil {
		r.Recorder.RecordEnqueue(batches, transitions, outcome)
	}
}

func countTransitions(batches []buffer.Batch) int {
	n := 0
	for _, b := range batches {
		n += len(b.Transitions)
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
