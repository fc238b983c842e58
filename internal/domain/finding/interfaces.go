package finding

import "context"

// Repository loads finding details from the backend.
type Repository interface {
	GetFinding(ctx context.Context, id string) (*Finding, error)
}
