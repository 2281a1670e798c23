package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stock-bot-lab/internal/domain"
	"stock-bot-lab/internal/indicators"
)

// Default prediction client configuration.
const (
	DefaultTimeout     = 2 * time.Second
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = 100 * time.Millisecond
	DefaultMaxDelay    = 1 * time.Second
	DefaultBackoffMult = 2.0
)

// PredictionClient calls a remote prediction endpoint (ML, social or news).
type PredictionClient struct {
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures PredictionClient.
type ClientOption func(*PredictionClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *PredictionClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *PredictionClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *PredictionClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *PredictionClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *PredictionClient) {
		c.client = client
	}
}

// NewPredictionClient creates a prediction client.
func NewPredictionClient(opts ...ClientOption) *PredictionClient {
	c := &PredictionClient{
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PredictRequest is the body posted to a prediction endpoint.
type PredictRequest struct {
	Symbol    string             `json:"symbol"`
	Timestamp time.Time          `json:"timestamp"`
	Features  map[string]float64 `json:"features"`
}

// PredictResponse is a prediction endpoint's answer.
type PredictResponse struct {
	Direction  string  `json:"direction"`
	Confidence float64 `json:"confidence"`
	Value      float64 `json:"value"`
}

// errNoContent marks a 204 reply: the provider has no opinion.
var errNoContent = errors.New("no content")

// Predict posts req to endpoint with retries and exponential backoff.
// Returns (nil, nil) when the endpoint answers 204 No Content.
func (c *PredictionClient) Predict(ctx context.Context, endpoint string, req PredictRequest) (*PredictResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		resp, err := c.do(ctx, endpoint, body)
		if errors.Is(err, errNoContent) {
			return nil, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}
		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *PredictionClient) do(ctx context.Context, endpoint string, body []byte) (*PredictResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, errNoContent
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limited (429)")
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var out PredictResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &out, nil
}

// PredictionSource is an ML, social or news source served over HTTP.
type PredictionSource struct {
	cfg      domain.SourceConfig
	endpoint string
	client   *PredictionClient
}

// NewPredictionSource creates a prediction-backed source.
func NewPredictionSource(cfg domain.SourceConfig, endpoint string, client *PredictionClient) *PredictionSource {
	return &PredictionSource{cfg: cfg, endpoint: endpoint, client: client}
}

func (s *PredictionSource) ID() string              { return s.cfg.ID }
func (s *PredictionSource) Kind() domain.SourceKind { return s.cfg.Kind }

// Signal asks the endpoint for a prediction on the current tick.
func (s *PredictionSource) Signal(ctx context.Context, in Input) (*domain.SignalSnapshot, error) {
	resp, err := s.client.Predict(ctx, s.endpoint, PredictRequest{
		Symbol:    in.Symbol,
		Timestamp: in.Timestamp,
		Features:  Features(in),
	})
	if err != nil || resp == nil {
		return nil, err
	}
	dir := domain.Direction(strings.ToLower(resp.Direction))
	return snapshot(s.cfg.ID, s.cfg.Kind, in, resp.Value, dir, resp.Confidence), nil
}

// Features summarizes recent history for remote predictors.
func Features(in Input) map[string]float64 {
	closes := indicators.Closes(in.History)
	f := map[string]float64{"price": in.Price, "bars": float64(len(closes))}
	if v, ok := indicators.Last(indicators.RSI(closes, 14)); ok {
		f["rsi_14"] = v
	}
	if v, ok := indicators.Last(indicators.EMA(closes, 9)); ok {
		f["ema_9"] = v
	}
	if v, ok := indicators.Last(indicators.EMA(closes, 21)); ok {
		f["ema_21"] = v
	}
	if v, ok := indicators.Last(indicators.Momentum(closes, 10)); ok {
		f["momentum_10"] = v
	}
	return f
}

var _ Source = (*PredictionSource)(nil)
