package model

import "time"

// APIKey identifies an API client. Only the SHA-256 hash of the raw key is
// stored; the prefix survives for display.
type APIKey struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	KeyPrefix string     `json:"key_prefix"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
