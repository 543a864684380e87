package domain

// ActivityStatus represents the outcome class of one check attempt.
type ActivityStatus string

const (
	ActivitySuccess ActivityStatus = "success"
	ActivityFailed  ActivityStatus = "failed"
)

// IsValid checks if the status is a valid value.
func (s ActivityStatus) IsValid() bool {
	return s == ActivitySuccess || s == ActivityFailed
}

// Activity is the immutable record of one check attempt.
// Corresponds to activities table in PostgreSQL. Append-only: records are
// never mutated, only evicted oldest-first past the retention cap.
type Activity struct {
	ID                 string         // PRIMARY KEY, uuid
	SentinelID         string         // owning sentinel
	Owner              string         // owning user id (denormalized for stats)
	Price              float64        // fetched price; 0 if the attempt failed before data retrieval
	Cost               float64        // fee charged or attempted
	Triggered          bool           // whether the threshold condition fired
	Status             ActivityStatus // success | failed
	PaymentMethod      PaymentMethod  // token the fee was paid in
	TransactionReceipt *string        // settlement receipt id (nullable)
	SettlementTimeMs   *int64         // payment settlement latency (nullable)
	ErrorMessage       *string        // human-readable failure detail (nullable)
	CreatedAt          int64          // Unix timestamp in milliseconds
}

// ActivityStats aggregates check outcomes for an owner or a sentinel.
// All fields are zero-valued when no activities match.
type ActivityStats struct {
	TotalChecks        int64
	TotalSpent         float64
	AlertsTriggered    int64
	SuccessRate        float64 // success-status count / total, in [0, 1]
	AvgCost            float64
	LastCheckTimestamp *int64 // nil when no activities match
}
