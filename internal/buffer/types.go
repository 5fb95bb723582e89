package buffer

// Transition is one observed step: the state, the action taken in it and
// what came back from the environment.
type Transition struct {
	State     []float64 `json:"state"`
	Action    int       `json:"action"`
	Reward    float64   `json:"reward"`
	Terminal  bool      `json:"terminal"`
	NextState []float64 `json:"next_state,omitempty"`
	LogProb   float64   `json:"log_prob"`
	Value     float64   `json:"value"`
}

// Batch is a flushed observe buffer from one environment of one worker.
type Batch struct {
	WorkerID    string       `json:"worker_id"`
	EnvID       int          `json:"env_id"`
	EpisodeID   int          `json:"episode_id"`
	Transitions []Transition `json:"transitions"`
	CreatedAtMs int64        `json:"created_at_ms"`
}

type InsertRequest struct {
	BatchSentAtMs int64   `json:"batch_sent_at_ms"`
	Batches       []Batch `json:"batches"`
}

type InsertResponse struct {
	Inserted int `json:"inserted"`
	Evicted  int `json:"evicted"`
	Size     int `json:"size"`
}

type RecordsResponse struct {
	Records []Record `json:"records"`
}

type Stats struct {
	Size      int    `json:"size"`
	Capacity  int    `json:"capacity"`
	Policy    string `json:"policy"`
	Inserted  uint64 `json:"inserted"`
	Evictions uint64 `json:"evictions"`
}
