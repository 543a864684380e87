// Package insight wraps the AI analysis collaborator. The generator never
// fails upward: internal errors map to a zero-confidence neutral placeholder
// at this boundary so callers need no failure handling on this path.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"sentineld/internal/domain"
)

// DefaultTimeout bounds one generation call.
const DefaultTimeout = 20 * time.Second

// Analysis is the result of one generation over recent price samples.
type Analysis struct {
	Text            string
	ConfidenceScore int // 0..100
	Sentiment       domain.Sentiment
	Cost            float64
}

// Placeholder is the safe default returned when generation fails.
func Placeholder() *Analysis {
	return &Analysis{
		Text:            "Analysis unavailable.",
		ConfidenceScore: 0,
		Sentiment:       domain.SentimentNeutral,
		Cost:            0,
	}
}

// Generator produces an analysis over recent price samples.
// Implementations must not return an error alongside a nil Analysis; failure
// degrades to Placeholder.
type Generator interface {
	Generate(ctx context.Context, samples []*domain.PriceSample) *Analysis
}

// HTTPGenerator calls a text-generation endpoint.
type HTTPGenerator struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *log.Logger
}

// NewHTTPGenerator creates a generator against an analysis endpoint.
func NewHTTPGenerator(endpoint, apiKey string, logger *log.Logger) *HTTPGenerator {
	if logger == nil {
		logger = log.Default()
	}
	return &HTTPGenerator{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   logger,
	}
}

var _ Generator = (*HTTPGenerator)(nil)

type generateRequest struct {
	Samples []samplePayload `json:"samples"`
}

type samplePayload struct {
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
}

type generateResponse struct {
	Text            string  `json:"text"`
	ConfidenceScore int     `json:"confidenceScore"`
	Sentiment       string  `json:"sentiment"`
	Cost            float64 `json:"cost"`
}

// Generate posts the samples and parses the analysis. Any failure along the
// way logs and returns the placeholder.
func (g *HTTPGenerator) Generate(ctx context.Context, samples []*domain.PriceSample) *Analysis {
	analysis, err := g.generate(ctx, samples)
	if err != nil {
		g.logger.Printf("insight generation failed, returning placeholder: %v", err)
		return Placeholder()
	}
	return analysis
}

func (g *HTTPGenerator) generate(ctx context.Context, samples []*domain.PriceSample) (*Analysis, error) {
	payload := generateRequest{Samples: make([]samplePayload, 0, len(samples))}
	for _, s := range samples {
		payload.Samples = append(payload.Samples, samplePayload{
			Value:     s.Value,
			Timestamp: s.TimestampMs,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	sentiment := domain.Sentiment(parsed.Sentiment)
	if !sentiment.IsValid() {
		sentiment = domain.SentimentNeutral
	}
	score := parsed.ConfidenceScore
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}

	return &Analysis{
		Text:            parsed.Text,
		ConfidenceScore: score,
		Sentiment:       sentiment,
		Cost:            parsed.Cost,
	}, nil
}

// StaticGenerator returns a fixed analysis; used in tests and stub runs.
type StaticGenerator struct {
	Analysis *Analysis
	Calls    int
}

var _ Generator = (*StaticGenerator)(nil)

// Generate returns the configured analysis, or the placeholder if unset.
func (g *StaticGenerator) Generate(_ context.Context, _ []*domain.PriceSample) *Analysis {
	g.Calls++
	if g.Analysis == nil {
		return Placeholder()
	}
	return g.Analysis
}
