package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamingAssay answers the first `ready` sequences immediately and then
// stalls until the client goes away.
func streamingAssay(t *testing.T, ready int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req evaluateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for i, seq := range req.Sequences {
			if i >= ready {
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
				return
			}
			fmt.Fprintf(w, "{\"sequence\":%q,\"fitness\":%v}\n", seq, 0.1*float64(i+1))
			flusher.Flush()
		}
	}))
}

func TestHTTPOracleFullBatch(t *testing.T) {
	srv := streamingAssay(t, 10)
	defer srv.Close()

	o, err := NewHTTPOracle(HTTPConfig{URL: srv.URL})
	require.NoError(t, err)
	out, err := o.Evaluate(context.Background(), []string{"AAA", "CCC", "DDD"})
	require.NoError(t, err)
	assert.InDelta(t, 0.1, out["AAA"], 1e-12)
	assert.InDelta(t, 0.2, out["CCC"], 1e-12)
	assert.InDelta(t, 0.3, out["DDD"], 1e-12)
}

func TestHTTPOracleKeepsResultsReadBeforeDeadline(t *testing.T) {
	srv := streamingAssay(t, 2)
	defer srv.Close()

	o, err := NewHTTPOracle(HTTPConfig{URL: srv.URL})
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := o.Evaluate(ctx, []string{"AAA", "CCC", "DDD", "EEE"})
	require.ErrorIs(t, err, ErrTimeout)
	var timeout *TimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, 4, timeout.Requested)
	assert.Equal(t, 2, timeout.Returned)
	assert.Len(t, out, 2)
	assert.Contains(t, out, "AAA")
	assert.Contains(t, out, "CCC")
}

func TestHTTPOracleSkipsUnmeasuredAndUnrequested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"sequence":"AAA","fitness":0.4}`)
		fmt.Fprintln(w, `{"sequence":"CCC","error":"expression failed"}`)
		fmt.Fprintln(w, `{"sequence":"ZZZ","fitness":0.9}`)
	}))
	defer srv.Close()

	o, err := NewHTTPOracle(HTTPConfig{URL: srv.URL})
	require.NoError(t, err)
	out, err := o.Evaluate(context.Background(), []string{"AAA", "CCC"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"AAA": 0.4}, out)
}

func TestHTTPOracleServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "instrument offline", http.StatusInternalServerError)
	}))
	defer srv.Close()

	o, err := NewHTTPOracle(HTTPConfig{URL: srv.URL})
	require.NoError(t, err)
	out, err := o.Evaluate(context.Background(), []string{"AAA"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "instrument offline")
	assert.Empty(t, out)

	_, err = NewHTTPOracle(HTTPConfig{})
	assert.Error(t, err)
}
