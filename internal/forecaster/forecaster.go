// Package forecaster implements the stateless HTTP client to the external
// forecast service (spec §4.7/C7), using resty with fixed-backoff retries.
package forecaster

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ammtrader/ammtrader/internal/errs"
)

const (
	minCV = 0.03
	maxCV = 0.15
)

// Request is the body sent to POST /predict.
type Request struct {
	Timestamps    []int64 `json:"timestamps"`
	Values        []float64 `json:"values"`
	ForecastUntil int64   `json:"forecast_until"`
}

// point is one (timestamp, value) forecast sample.
type point struct {
	Timestamp int64   `json:"ts"`
	Value     float64 `json:"value"`
}

// rawResponse is the wire shape returned by the forecaster (spec §6).
type rawResponse struct {
	Forecast           []point   `json:"forecast"`
	Lower              []float64 `json:"lower,omitempty"`
	Upper              []float64 `json:"upper,omitempty"`
	ModelName          string    `json:"model_name"`
	StrategyName       string    `json:"strategy_name"`
	ProcessingTimeSecs float64   `json:"processing_time_secs"`
	ModelCount         int       `json:"model_count"`
}

// Point is one forecast sample with its derived confidence.
type Point struct {
	Timestamp  time.Time
	Value      float64
	Confidence float64 // 0 when no interval data was returned
}

// Response is the decoded /predict result with confidence computed per
// forecast point.
type Response struct {
	Points             []Point
	ModelName          string
	StrategyName       string
	ProcessingTimeSecs float64
	ModelCount         int
}

// Client submits historical series and receives point forecasts with
// confidence bands.
type Client struct {
	http       *resty.Client
	baseURL    string
	maxRetries int
}

// Config configures the HTTP base URL, timeout and retry backoff.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// New constructs a forecaster Client.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	c := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(cfg.Backoff).
		SetRetryMaxWaitTime(cfg.Backoff)
	return &Client{http: c, baseURL: cfg.BaseURL, maxRetries: cfg.MaxRetries}
}

// Predict submits a request and returns the decoded forecast with
// per-point confidence derived from the returned interval width
// (spec §4.7).
func (c *Client) Predict(ctx context.Context, req Request) (*Response, error) {
	var raw rawResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&raw).
		Post(c.baseURL + "/predict")
	if err != nil {
		return nil, errs.NewTransient("forecaster.Predict", err)
	}
	if resp.IsError() {
		return nil, errs.NewTransient("forecaster.Predict", fmt.Errorf("forecaster returned status %d", resp.StatusCode()))
	}

	lastDataTS := int64(0)
	if len(req.Timestamps) > 0 {
		lastDataTS = req.Timestamps[len(req.Timestamps)-1]
	}

	points := make([]Point, len(raw.Forecast))
	for i, p := range raw.Forecast {
		var confidence float64
		if i < len(raw.Lower) && i < len(raw.Upper) {
			confidence = Confidence(raw.Lower[i], raw.Upper[i], p.Value, lastDataTS, p.Timestamp)
		}
		points[i] = Point{Timestamp: time.Unix(p.Timestamp, 0).UTC(), Value: p.Value, Confidence: confidence}
	}

	return &Response{
		Points:             points,
		ModelName:          raw.ModelName,
		StrategyName:       raw.StrategyName,
		ProcessingTimeSecs: raw.ProcessingTimeSecs,
		ModelCount:         raw.ModelCount,
	}, nil
}

// Confidence implements the §4.7 formula, clamped to [0, 1]. A wider
// [lower, upper] band never yields a higher confidence (monotone in width).
func Confidence(lower, upper, forecastValue float64, lastDataTS, forecastTS int64) float64 {
	if forecastValue == 0 {
		return 0
	}
	relativeWidth := (upper - lower) / forecastValue
	hoursAhead := math.Max(1, float64(forecastTS-lastDataTS)/3600)
	cv := relativeWidth / (2.56 * math.Sqrt(hoursAhead))
	confidence := (maxCV - cv) / (maxCV - minCV)
	return clamp01(confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
