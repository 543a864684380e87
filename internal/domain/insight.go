package domain

// Sentiment classifies the direction of an AI insight.
type Sentiment string

const (
	SentimentBullish Sentiment = "bullish"
	SentimentBearish Sentiment = "bearish"
	SentimentNeutral Sentiment = "neutral"
)

// IsValid checks if the sentiment is a valid value.
func (s Sentiment) IsValid() bool {
	return s == SentimentBullish || s == SentimentBearish || s == SentimentNeutral
}

// Insight is a periodic AI-generated summary over recent check activity.
// Corresponds to insights table in PostgreSQL. Read-only after creation,
// evicted oldest-first past the retention cap.
type Insight struct {
	ID              string    // PRIMARY KEY, uuid
	SentinelID      string    // owning sentinel
	Owner           string    // owning user id
	Text            string    // generated summary
	ConfidenceScore int       // 0..100
	Sentiment       Sentiment // bullish | bearish | neutral
	Cost            float64   // generation fee
	CreatedAt       int64     // Unix timestamp in milliseconds
}

// PriceSample is one observed price point, fed to the insight generator.
// Corresponds to price_samples table in ClickHouse.
type PriceSample struct {
	SentinelID  string  // owning sentinel
	TimestampMs int64   // Unix timestamp in milliseconds
	Value       float64 // observed price
}
