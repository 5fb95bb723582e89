package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/YARL-project/YARL/internal/buffer"
	"github.com/YARL-project/YARL/internal/metrics"
)

func newBufferServer(t *testing.T, capacity int) (*httptest.Server, *buffer.RingBuffer) {
	t.Helper()
	rb, err := buffer.NewRingBuffer(capacity, buffer.PolicyFIFO, 1)
	require.NoError(t, err)
	srv := httptest.NewServer(NewBufferHandler(rb, metrics.NewCollector("yarl", nil), zap.NewNop(), 1<<20))
	t.Cleanup(srv.Close)
	return srv, rb
}

func insertRequest(workerID string, rewards ...float64) buffer.InsertRequest {
	b := buffer.Batch{WorkerID: workerID, EnvID: 1, EpisodeID: 1}
	for _, r := range rewards {
		b.Transitions = append(b.Transitions, buffer.Transition{State: []float64{r}, Reward: r})
	}
	return buffer.InsertRequest{Batches: []buffer.Batch{b}}
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestEnqueueEvictsOldest(t *testing.T) {
	srv, rb := newBufferServer(t, 3)

	resp := postJSON(t, srv.URL+"/enqueue", insertRequest("w", 1, 2))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, buffer.InsertResponse{Inserted: 2, Evicted: 0, Size: 2}, decode[buffer.InsertResponse](t, resp))

	resp = postJSON(t, srv.URL+"/enqueue", insertRequest("w", 3, 4, 5))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, buffer.InsertResponse{Inserted: 3, Evicted: 2, Size: 3}, decode[buffer.InsertResponse](t, resp))

	var rewards []float64
	for _, r := range rb.Snapshot() {
		rewards = append(rewards, r.Transition.Reward)
		assert.Equal(t, "w", r.WorkerID)
	}
	assert.Equal(t, []float64{3, 4, 5}, rewards)
}

func TestEnqueueRejectsBadBodies(t *testing.T) {
	srv, _ := newBufferServer(t, 3)

	resp, err := http.Post(srv.URL+"/enqueue", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/enqueue")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEnqueueBodyLimit(t *testing.T) {
	rb, err := buffer.NewRingBuffer(3, buffer.PolicyFIFO, 1)
	require.NoError(t, err)
	srv := httptest.NewServer(NewBufferHandler(rb, nil, nil, 16))
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/enqueue", insertRequest("w", 1, 2, 3))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Zero(t, rb.Size())
}

func TestDequeueAndSample(t *testing.T) {
	srv, rb := newBufferServer(t, 10)

	resp, err := http.Get(srv.URL + "/dequeue")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	postJSON(t, srv.URL+"/enqueue", insertRequest("w", 1, 2, 3, 4))

	resp, err = http.Get(srv.URL + "/sample?n=6")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[buffer.RecordsResponse](t, resp).Records, 6)
	assert.Equal(t, 4, rb.Size(), "sampling does not remove")

	resp, err = http.Get(srv.URL + "/dequeue?batch_size=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	records := decode[buffer.RecordsResponse](t, resp).Records
	require.Len(t, records, 3)
	assert.Equal(t, 1.0, records[0].Transition.Reward)
	assert.Equal(t, 1, rb.Size())

	resp, err = http.Get(srv.URL + "/sample?n=0")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDequeueAndSampleOversized(t *testing.T) {
	srv, rb := newBufferServer(t, 10)
	postJSON(t, srv.URL+"/enqueue", insertRequest("w", 1, 2, 3))

	resp, err := http.Get(srv.URL + "/sample?n=1000000000")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/sample?n=11")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 3, rb.Size())

	resp, err = http.Get(srv.URL + "/dequeue?batch_size=1000000000")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[buffer.RecordsResponse](t, resp).Records, 3)
	assert.Zero(t, rb.Size())
}

func TestConfigAndStats(t *testing.T) {
	srv, rb := newBufferServer(t, 5)

	resp, err := http.Get(srv.URL + "/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, configPayload{Policy: "fifo", Capacity: 5}, decode[configPayload](t, resp))

	resp = postJSON(t, srv.URL+"/config", configPayload{Policy: "freshness"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, buffer.PolicyFreshness, rb.Policy())

	resp = postJSON(t, srv.URL+"/config", configPayload{Policy: "lifo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/config", configPayload{Capacity: 50})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	postJSON(t, srv.URL+"/enqueue", insertRequest("w", 1, 2))
	resp, err = http.Get(srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, buffer.Stats{Size: 2, Capacity: 5, Policy: "freshness", Inserted: 2}, decode[buffer.Stats](t, resp))
}

func TestBufferMetricsEndpoint(t *testing.T) {
	srv, _ := newBufferServer(t, 2)
	postJSON(t, srv.URL+"/enqueue", insertRequest("w", 1, 2, 3))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "yarl_buffer_evictions_total 1")
	assert.Contains(t, string(body), "yarl_buffer_size 2")

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
