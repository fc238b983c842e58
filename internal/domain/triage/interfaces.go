package triage

import "context"

// Repository loads triage results from the backend.
type Repository interface {
	GetTriage(ctx context.Context, findingID string) (*Result, error)
}

// Invalidator marks cache keys stale.
type Invalidator interface {
	Invalidate(ctx context.Context, key string) error
}
