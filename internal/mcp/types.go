package mcp

import (
	"time"

	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/rpggio/triagewatch/internal/stream"
)

type FindingParams struct {
	FindingID string `json:"finding_id" jsonschema:"id of the finding"`
}

type GetFindingActivityParams struct {
	FindingID string   `json:"finding_id" jsonschema:"id of the finding"`
	Limit     int      `json:"limit,omitempty" jsonschema:"maximum number of activities to return, newest first"`
	Types     []string `json:"types,omitempty" jsonschema:"only return activities of these types"`
}

type PostCommentParams struct {
	FindingID string `json:"finding_id" jsonschema:"id of the finding"`
	Content   string `json:"content" jsonschema:"comment text"`
}

type GetStreamStateParams struct {
	FindingID string `json:"finding_id,omitempty" jsonschema:"limit the report to one finding"`
}

// ActivityView is the reconciled activity list of a finding.
type ActivityView struct {
	FindingID   string           `json:"finding_id"`
	StreamState stream.State     `json:"stream_state"`
	LiveCount   int              `json:"live_count"`
	Total       int              `json:"total"`
	Returned    int              `json:"returned"`
	FetchedAt   time.Time        `json:"fetched_at"`
	Finding     *finding.Finding `json:"finding,omitempty"`
	Triage      *triage.Result   `json:"triage,omitempty"`
	Activities  []ActivityItem   `json:"activities"`
}

// ActivityItem is one activity as shown to an agent.
type ActivityItem struct {
	ID            string             `json:"id"`
	Type          activity.Type      `json:"type"`
	Actor         string             `json:"actor"`
	ActorKind     activity.ActorKind `json:"actor_kind"`
	Content       string             `json:"content,omitempty"`
	Payload       activity.Payload   `json:"payload,omitempty"`
	PreviousValue string             `json:"previous_value,omitempty"`
	NewValue      string             `json:"new_value,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

type PostCommentResponse struct {
	FindingID string `json:"finding_id"`
	Posted    bool   `json:"posted"`
}

type StreamStatus struct {
	FindingID string       `json:"finding_id"`
	State     stream.State `json:"state"`
	LiveCount int          `json:"live_count"`
}

type StreamStateResponse struct {
	Streams []StreamStatus `json:"streams"`
}

type UnwatchResponse struct {
	FindingID string `json:"finding_id"`
	Released  bool   `json:"released"`
}
