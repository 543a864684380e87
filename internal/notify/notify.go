// Package notify delivers alert notifications. Delivery is fire-and-forget
// from the check runner's point of view: failures are logged by the caller
// and never fail a check.
package notify

import (
	"context"

	"sentineld/internal/domain"
)

// Alert is the payload delivered when a sentinel's condition fires.
type Alert struct {
	Title        string           `json:"title"`
	SentinelID   string           `json:"sentinelId"`
	CurrentValue float64          `json:"currentValue"`
	Threshold    float64          `json:"threshold"`
	Condition    domain.Condition `json:"condition"`
	Timestamp    int64            `json:"timestamp"` // Unix ms
	Message      string           `json:"message,omitempty"`
}

// Notifier delivers an alert to a target.
type Notifier interface {
	Notify(ctx context.Context, target string, alert Alert) error
}
