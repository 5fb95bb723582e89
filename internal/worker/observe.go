package worker

import (
	"time"

	"github.com/YARL-project/YARL/internal/buffer"
)

// ObserveBuffer collects transitions of a single environment until either
// buffer_size of them are pending or an episode ends.
type ObserveBuffer struct {
	WorkerID string
	EnvID    int

	size      int
	episodeID int
	pending   []buffer.Transition
}

func NewObserveBuffer(workerID string, envID, size int) *ObserveBuffer {
	if size <= 0 {
		size = 1
	}
	return &ObserveBuffer{
		WorkerID: workerID,
		EnvID:    envID,
		size:     size,
		pending:  make([]buffer.Transition, 0, size),
	}
}

// Observe appends t and returns a flushed batch when the buffer filled up
// or t was terminal.
func (o *ObserveBuffer) Observe(episodeID int, t buffer.Transition) (buffer.Batch, bool) {
	o.episodeID = episodeID
	o.pending = append(o.pending, t)
	if len(o.pending) >= o.size || t.Terminal {
		return o.Flush()
	}
	return buffer.Batch{}, false
}

// Flush empties the buffer. It returns false when nothing was pending.
func (o *ObserveBuffer) Flush() (buffer.Batch, bool) {
	if len(o.pending) == 0 {
		return buffer.Batch{}, false
	}
	transitions := make([]buffer.Transition, len(o.pending))
	copy(transitions, o.pending)
	o.pending = o.pending[:0]
	return buffer.Batch{
		WorkerID:    o.WorkerID,
		EnvID:       o.EnvID,
		EpisodeID:   o.episodeID,
		Transitions: transitions,
		CreatedAtMs: time.Now().UnixMilli(),
	}, true
}

func (o *ObserveBuffer) Len() int {
	return len(o.pending)
}
