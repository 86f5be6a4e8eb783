package generative

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModelServer struct {
	mu         sync.Mutex
	requestIDs []string
	lastSample SampleRequest
}

func (f *fakeModelServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/sample", func(w http.ResponseWriter, r *http.Request) {
		var body sampleRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.record(body.RequestID)
		f.mu.Lock()
		f.lastSample = body.SampleRequest
		f.mu.Unlock()
		seqs := make([]string, 0, body.N)
		for i := 0; i < body.N; i++ {
			seqs = append(seqs, body.Context)
		}
		_ = json.NewEncoder(w).Encode(sampleResponseBody{Sequences: seqs})
	})
	mux.HandleFunc("/score", func(w http.ResponseWriter, r *http.Request) {
		var body sequenceRequestBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.record(body.RequestID)
		_ = json.NewEncoder(w).Encode(scoreResponseBody{LogLikelihood: -float64(len(body.Sequence))})
	})
	mux.HandleFunc("/embed", func(w http.ResponseWriter, r *http.Request) {
		var body sequenceRequestBody
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.record(body.RequestID)
		_ = json.NewEncoder(w).Encode(embedResponseBody{Embedding: []float64{float64(len(body.Sequence)), 1}})
	})
	return mux
}

func (f *fakeModelServer) record(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestIDs = append(f.requestIDs, id)
}

func TestRemoteModelRoundTrip(t *testing.T) {
	fake := &fakeModelServer{}
	srv := httptest.NewServer(fake.handler())
	defer srv.Close()

	m, err := NewRemoteModel(RemoteOptions{BaseURL: srv.URL + "/", RequestsPerSecond: 1000})
	require.NoError(t, err)

	out, err := m.Sample(context.Background(), SampleRequest{Context: "ACDE", Mask: []int{1, 2}, N: 3, Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, []string{"ACDE", "ACDE", "ACDE"}, out)
	assert.Equal(t, []int{1, 2}, fake.lastSample.Mask)
	assert.Equal(t, 0.5, fake.lastSample.Temperature)

	score, err := m.ScoreLikelihood(context.Background(), "ACDE")
	require.NoError(t, err)
	assert.Equal(t, -4.0, score)

	vec, err := m.Embed(context.Background(), "ACD")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1}, vec)

	require.Len(t, fake.requestIDs, 3)
	seen := map[string]bool{}
	for _, id := range fake.requestIDs {
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestRemoteModelServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m, err := NewRemoteModel(RemoteOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = m.ScoreLikelihood(context.Background(), "ACDE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestRemoteModelHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sampleResponseBody{})
	}))
	defer srv.Close()

	m, err := NewRemoteModel(RemoteOptions{BaseURL: srv.URL})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Sample(ctx, SampleRequest{Context: "ACDE", Mask: []int{0}, N: 1, Temperature: 1})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = m.Sample(context.Background(), SampleRequest{N: 1, Temperature: 1})
	assert.ErrorIs(t, err, ErrNoContext)
}
