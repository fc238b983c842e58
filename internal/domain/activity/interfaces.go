package activity

import "context"

// Repository provides access to a finding's activity history.
type Repository interface {
	ListActivities(ctx context.Context, findingID string, opts ListActivityOptions) (*RawPage, error)
	PostComment(ctx context.Context, findingID, content string) error
}
