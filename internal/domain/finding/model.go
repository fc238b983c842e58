package finding

import "time"

// Finding is a detected security issue tracked through a status workflow.
type Finding struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Severity   string    `json:"severity"`
	Status     string    `json:"status"`
	AssetID    string    `json:"asset_id,omitempty"`
	AssigneeID string    `json:"assignee_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}
