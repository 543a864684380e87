package domain

// SentinelStatus represents the lifecycle state of a sentinel.
// Transitions are gated by funding: unfunded -> ready -> monitoring <-> paused,
// with any state falling back to unfunded when the wallet runs dry.
type SentinelStatus string

const (
	StatusUnfunded   SentinelStatus = "unfunded"
	StatusReady      SentinelStatus = "ready"
	StatusMonitoring SentinelStatus = "monitoring"
	StatusPaused     SentinelStatus = "paused"
)

// String returns the string representation of SentinelStatus.
func (s SentinelStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a valid value.
func (s SentinelStatus) IsValid() bool {
	switch s {
	case StatusUnfunded, StatusReady, StatusMonitoring, StatusPaused:
		return true
	}
	return false
}

// Condition represents the threshold comparison direction.
type Condition string

const (
	ConditionAbove Condition = "above"
	ConditionBelow Condition = "below"
)

// IsValid checks if the condition is a valid value.
func (c Condition) IsValid() bool {
	return c == ConditionAbove || c == ConditionBelow
}

// Network represents the ledger network a sentinel operates on.
type Network string

const (
	NetworkTest       Network = "test"
	NetworkProduction Network = "production"
)

// IsValid checks if the network is a valid value.
func (n Network) IsValid() bool {
	return n == NetworkTest || n == NetworkProduction
}

// Sentinel represents a configured autonomous monitoring agent tied to one
// wallet. Corresponds to sentinels table in PostgreSQL.
type Sentinel struct {
	ID                 string         // PRIMARY KEY, uuid
	Owner              string         // owning user id
	WalletAddress      string         // base58 wallet address
	SigningCredential  string         // opaque signing secret; never logged
	Threshold          float64        // price threshold
	Condition          Condition      // above | below
	PaymentMethod      PaymentMethod  // token used to pay per-check fees
	NotificationTarget string         // webhook URL or chat address
	Network            Network        // test | production
	Status             SentinelStatus // lifecycle state
	IsActive           bool           // at most one active per (owner, network)
	CreatedAt          int64          // Unix timestamp in milliseconds
	UpdatedAt          int64          // Unix timestamp in milliseconds
}

// ShouldTrigger reports whether a fetched price trips the alert condition.
// Equality never triggers: the comparison is strict in both directions.
func (s *Sentinel) ShouldTrigger(price float64) bool {
	switch s.Condition {
	case ConditionAbove:
		return price > s.Threshold
	case ConditionBelow:
		return price < s.Threshold
	}
	return false
}
