package domain

// Profile represents a dashboard user.
// Corresponds to profiles table in PostgreSQL.
type Profile struct {
	ID          string // PRIMARY KEY, uuid
	DisplayName string
	Email       string
	CreatedAt   int64 // Unix timestamp in milliseconds
	UpdatedAt   int64 // Unix timestamp in milliseconds
}
