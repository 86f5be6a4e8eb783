package oracle

import (
	"bufio"
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

// HTTPOracle submits one batch per call to an assay service. The service
// answers with newline-delimited JSON, one {"sequence", "fitness"} object
// per line, so results read before the deadline survive a timeout.
type HTTPOracle struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

type HTTPConfig struct {
	URL               string
	RequestsPerSecond float64
	Client            *http.Client
	Logger            *slog.Logger
}

func NewHTTPOracle(cfg HTTPConfig) (*HTTPOracle, error) {
	if cfg.URL == "" {
		return nil, errors.New("oracle url is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPOracle{url: cfg.URL, client: client, limiter: limiter, logger: logger}, nil
}

func (o *HTTPOracle) Name() string {
	return KindHTTP
}

type evaluateRequest struct {
	RequestID string   `json:"request_id"`
	Sequences []string `json:"sequences"`
}

type evaluateLine struct {
	Sequence string   `json:"sequence"`
	Fitness  *float64 `json:"fitness"`
	Error    string   `json:"error,omitempty"`
}

func (o *HTTPOracle) Evaluate(ctx context.Context, batch []string) (map[string]float64, error) {
	out := make(map[string]float64, len(batch))
	if len(batch) == 0 {
		return out, nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return out, o.interrupted(ctx, err, len(batch), 0)
	}

	requestID := uuid.NewString()
	payload, err := json.Marshal(evaluateRequest{RequestID: requestID, Sequences: batch})
	if err != nil {
		return out, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return out, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/x-ndjson")

	start := time.Now()
	resp, err := o.client.Do(req)
	if err != nil {
		return out, o.interrupted(ctx, fmt.Errorf("oracle request: %w", err), len(batch), 0)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return out, fmt.Errorf("oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	requested := make(map[string]struct{}, len(batch))
	for _, seq := range batch {
		requested[seq] = struct{}{}
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var item evaluateLine
		if err := json.Unmarshal(line, &item); err != nil {
			return out, fmt.Errorf("oracle: decode line: %w", err)
		}
		if _, ok := requested[item.Sequence]; !ok {
			o.logger.Warn("oracle returned unrequested sequence", "request_id", requestID, "sequence", item.Sequence)
			continue
		}
		if item.Error != "" || item.Fitness == nil {
			o.logger.Warn("oracle could not measure sequence", "request_id", requestID, "sequence", item.Sequence, "error", item.Error)
			continue
		}
		out[item.Sequence] = *item.Fitness
	}
	if err := scanner.Err(); err != nil {
		return out, o.interrupted(ctx, fmt.Errorf("oracle stream: %w", err), len(batch), len(out))
	}
	o.logger.Debug("oracle batch", "request_id", requestID, "requested", len(batch), "returned", len(out), "elapsed", time.Since(start))
	return out, nil
}

func (o *HTTPOracle) interrupted(ctx context.Context, err error, requested, returned int) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{Requested: requested, Returned: returned}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
