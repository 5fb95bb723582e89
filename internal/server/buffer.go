package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/YARL-project/YARL/internal/buffer"
	"github.com/YARL-project/YARL/internal/metrics"
)

// BufferHandler serves a ring buffer over HTTP.
type BufferHandler struct {
	rb           *buffer.RingBuffer
	metrics      *metrics.Collector
	logger       *zap.Logger
	maxBodyBytes int64
}

// NewBufferHandler wires the replay-buffer endpoints. m may be nil.
func NewBufferHandler(rb *buffer.RingBuffer, m *metrics.Collector, logger *zap.Logger, maxBodyBytes int64) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &BufferHandler{
		rb:           rb,
		metrics:      m,
		logger:       logger.With(zap.String("component", "replay-buffer")),
		maxBodyBytes: maxBodyBytes,
	}

	mux := http.NewServeMux()
	h.handle(mux, "/healthz", http.HandlerFunc(healthz))
	h.handle(mux, "/stats", http.HandlerFunc(h.stats))
	h.handle(mux, "/config", http.HandlerFunc(h.config))
	h.handle(mux, "/enqueue", http.HandlerFunc(h.enqueue))
	h.handle(mux, "/dequeue", http.HandlerFunc(h.dequeue))
	h.handle(mux, "/sample", http.HandlerFunc(h.sample))
	if m != nil {
		mux.Handle("/metrics", m.Handler())
		m.SetBufferStats(rb.Size(), rb.Capacity())
	}
	return mux
}

func (h *BufferHandler) handle(mux *http.ServeMux, path string, fn http.Handler) {
	if h.metrics != nil {
		fn = h.metrics.Middleware(path, fn)
	}
	mux.Handle(path, fn)
}

func (h *BufferHandler) stats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.rb.Stats())
}

type configPayload struct {
	Policy   string `json:"policy"`
	Capacity int    `json:"capacity,omitempty"`
}

func (h *BufferHandler) config(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, configPayload{Policy: h.rb.Policy(), Capacity: h.rb.Capacity()})
	case http.MethodPost:
		var payload configPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if payload.Capacity != 0 && payload.Capacity != h.rb.Capacity() {
			writeError(w, http.StatusBadRequest, errors.New("capacity is fixed by memory_spec"))
			return
		}
		if payload.Policy != "" {
			if err := h.rb.SetPolicy(payload.Policy); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			h.logger.Info("dequeue policy changed", zap.String("policy", payload.Policy))
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *BufferHandler) enqueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req buffer.InsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}

	now := time.Now()
	var records []buffer.Record
	for _, b := range req.Batches {
		for _, t := range b.Transitions {
			records = append(records, buffer.Record{Transition: t, WorkerID: b.WorkerID, EnvID: b.EnvID, InsertedAt: now})
		}
	}
	evicted := h.rb.InsertBatch(records)
	size := h.rb.Size()

	if h.metrics != nil {
		h.metrics.RecordInsert(len(records), evicted)
		h.metrics.SetBufferStats(size, h.rb.Capacity())
	}
	h.logger.Debug("inserted",
		zap.Int("batches", len(req.Batches)),
		zap.Int("records", len(records)),
		zap.Int("evicted", evicted),
		zap.Int("size", size))

	writeJSON(w, http.StatusAccepted, buffer.InsertResponse{Inserted: len(records), Evicted: evicted, Size: size})
}

func (h *BufferHandler) dequeue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	batchSize := queryInt(r, "batch_size", 1)
	if batchSize <= 0 {
		batchSize = 1
	}
	batchSize = min(batchSize, h.rb.Capacity())

	records := make([]buffer.Record, 0, min(batchSize, h.rb.Size()))
	for i := 0; i < batchSize; i++ {
		rec, err := h.rb.Dequeue()
		if err != nil {
			break
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRead("dequeue", len(records))
		h.metrics.SetBufferStats(h.rb.Size(), h.rb.Capacity())
	}
	writeJSON(w, http.StatusOK, buffer.RecordsResponse{Records: records})
}

func (h *BufferHandler) sample(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	n := queryInt(r, "n", 1)
	records, err := h.rb.Sample(n)
	switch {
	case errors.Is(err, buffer.ErrBufferEmpty):
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordRead("sample", len(records))
	}
	writeJSON(w, http.StatusOK, buffer.RecordsResponse{Records: records})
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
