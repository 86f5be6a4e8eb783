package generative

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// RemoteModel talks JSON over HTTP to a model server exposing
// POST /sample, POST /score and POST /embed.
type RemoteModel struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type RemoteOptions struct {
	BaseURL string
	Timeout time.Duration
	// RequestsPerSecond caps the request rate; <= 0 disables limiting.
	RequestsPerSecond float64
	Logger            *slog.Logger
	Client            *http.Client
}

func NewRemoteModel(opts RemoteOptions) (*RemoteModel, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("model server url is required")
	}
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &RemoteModel{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		client:  client,
		limiter: limiter,
		logger:  logger,
	}, nil
}

func (m *RemoteModel) Name() string {
	return "remote"
}

type sampleRequestBody struct {
	RequestID string `json:"request_id"`
	SampleRequest
}

type sampleResponseBody struct {
	Sequences []string `json:"sequences"`
}

type sequenceRequestBody struct {
	RequestID string `json:"request_id"`
	Sequence  string `json:"sequence"`
}

type scoreResponseBody struct {
	LogLikelihood float64 `json:"log_likelihood"`
}

type embedResponseBody struct {
	Embedding []float64 `json:"embedding"`
}

func (m *RemoteModel) Sample(ctx context.Context, req SampleRequest) ([]string, error) {
	if req.N <= 0 {
		return nil, nil
	}
	if req.Context == "" && req.Length <= 0 {
		return nil, ErrNoContext
	}
	var resp sampleResponseBody
	if err := m.post(ctx, "/sample", sampleRequestBody{RequestID: uuid.NewString(), SampleRequest: req}, &resp); err != nil {
		return nil, err
	}
	return resp.Sequences, nil
}

func (m *RemoteModel) ScoreLikelihood(ctx context.Context, raw string) (float64, error) {
	var resp scoreResponseBody
	if err := m.post(ctx, "/score", sequenceRequestBody{RequestID: uuid.NewString(), Sequence: raw}, &resp); err != nil {
		return 0, err
	}
	return resp.LogLikelihood, nil
}

// Embed returns the model's representation of raw.
func (m *RemoteModel) Embed(ctx context.Context, raw string) ([]float64, error) {
	var resp embedResponseBody
	if err := m.post(ctx, "/embed", sequenceRequestBody{RequestID: uuid.NewString(), Sequence: raw}, &resp); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

func (m *RemoteModel) post(ctx context.Context, path string, body any, out any) error {
	if err := m.limiter.Wait(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("model server %s: %w", path, err)
	}
	defer resp.Body.Close()
	m.logger.Debug("model server call", "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("model server %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("model server %s: decode response: %w", path, err)
	}
	return nil
}
