package insight

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"sentineld/internal/domain"
)

func sampleFixture() []*domain.PriceSample {
	return []*domain.PriceSample{
		{SentinelID: "s-1", Value: 1.01, TimestampMs: 1000},
		{SentinelID: "s-1", Value: 1.03, TimestampMs: 2000},
		{SentinelID: "s-1", Value: 0.99, TimestampMs: 3000},
	}
}

func TestHTTPGenerator_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-1" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		var req generateRequest
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if len(req.Samples) != 3 || req.Samples[2].Value != 0.99 {
			t.Errorf("unexpected samples payload: %+v", req.Samples)
		}
		json.NewEncoder(w).Encode(generateResponse{
			Text:            "Price is drifting down.",
			ConfidenceScore: 72,
			Sentiment:       string(domain.SentimentBearish),
			Cost:            0.0002,
		})
	}))
	defer srv.Close()

	g := NewHTTPGenerator(srv.URL, "key-1", log.New(io.Discard, "", 0))
	got := g.Generate(context.Background(), sampleFixture())

	if got.Text != "Price is drifting down." {
		t.Errorf("unexpected text: %q", got.Text)
	}
	if got.ConfidenceScore != 72 {
		t.Errorf("expected score 72, got %d", got.ConfidenceScore)
	}
	if got.Sentiment != domain.SentimentBearish {
		t.Errorf("expected bearish, got %s", got.Sentiment)
	}
	if got.Cost != 0.0002 {
		t.Errorf("expected cost 0.0002, got %f", got.Cost)
	}
}

func TestHTTPGenerator_FailureReturnsPlaceholder(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte("<html>gateway timeout</html>"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			g := NewHTTPGenerator(srv.URL, "", log.New(io.Discard, "", 0))
			got := g.Generate(context.Background(), sampleFixture())

			want := Placeholder()
			if got.Text != want.Text || got.ConfidenceScore != 0 || got.Sentiment != domain.SentimentNeutral || got.Cost != 0 {
				t.Errorf("expected placeholder, got %+v", got)
			}
		})
	}
}

func TestHTTPGenerator_UnreachableReturnsPlaceholder(t *testing.T) {
	g := NewHTTPGenerator("http://127.0.0.1:1", "", log.New(io.Discard, "", 0))
	got := g.Generate(context.Background(), sampleFixture())
	if got.Sentiment != domain.SentimentNeutral || got.ConfidenceScore != 0 {
		t.Errorf("expected placeholder, got %+v", got)
	}
}

func TestHTTPGenerator_SanitizesResponse(t *testing.T) {
	tests := []struct {
		name          string
		resp          generateResponse
		wantScore     int
		wantSentiment domain.Sentiment
	}{
		{"score above range", generateResponse{ConfidenceScore: 140, Sentiment: "bullish"}, 100, domain.SentimentBullish},
		{"score below range", generateResponse{ConfidenceScore: -5, Sentiment: "bearish"}, 0, domain.SentimentBearish},
		{"unknown sentiment", generateResponse{ConfidenceScore: 50, Sentiment: "euphoric"}, 50, domain.SentimentNeutral},
		{"empty sentiment", generateResponse{ConfidenceScore: 50}, 50, domain.SentimentNeutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				json.NewEncoder(w).Encode(tt.resp)
			}))
			defer srv.Close()

			g := NewHTTPGenerator(srv.URL, "", log.New(io.Discard, "", 0))
			got := g.Generate(context.Background(), sampleFixture())

			if got.ConfidenceScore != tt.wantScore {
				t.Errorf("expected score %d, got %d", tt.wantScore, got.ConfidenceScore)
			}
			if got.Sentiment != tt.wantSentiment {
				t.Errorf("expected sentiment %s, got %s", tt.wantSentiment, got.Sentiment)
			}
		})
	}
}

func TestStaticGenerator(t *testing.T) {
	g := &StaticGenerator{}
	got := g.Generate(context.Background(), nil)
	if got.Sentiment != domain.SentimentNeutral {
		t.Errorf("unset static generator returns the placeholder, got %+v", got)
	}

	g.Analysis = &Analysis{Text: "fixed", ConfidenceScore: 90, Sentiment: domain.SentimentBullish}
	if got := g.Generate(context.Background(), nil); got.Text != "fixed" {
		t.Errorf("expected configured analysis, got %+v", got)
	}
	if g.Calls != 2 {
		t.Errorf("expected 2 calls recorded, got %d", g.Calls)
	}
}
