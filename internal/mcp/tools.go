package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/feed"
)

func registerTools(server *sdkmcp.Server, svc Services, logger *slog.Logger) {
	readOnly := &sdkmcp.ToolAnnotations{ReadOnlyHint: true}

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_finding_activity",
		Description: "Get the activity of a finding: live events first, then fetched history, de-duplicated by id. Starts following the finding's live stream.",
		Annotations: readOnly,
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetFindingActivityParams) (*sdkmcp.CallToolResult, any, error) {
		f, err := svc.Feeds.Open(ctx, strings.TrimSpace(in.FindingID))
		if err != nil {
			return errorResult(err), nil, nil
		}
		return jsonResult(buildActivityView(f.Snapshot(), in.Limit, in.Types))
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "post_comment",
		Description: "Post a comment on a finding. The comment shows up in the activity list once the backend confirms it.",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in PostCommentParams) (*sdkmcp.CallToolResult, any, error) {
		f, err := svc.Feeds.Open(ctx, strings.TrimSpace(in.FindingID))
		if err != nil {
			return errorResult(err), nil, nil
		}
		if err := f.PostComment(ctx, in.Content); err != nil {
			logger.WarnContext(ctx, "posting comment failed", "finding_id", in.FindingID, "error", err)
			return errorResult(err), nil, nil
		}
		return jsonResult(PostCommentResponse{FindingID: f.FindingID(), Posted: true})
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "refresh_finding",
		Description: "Discard cached finding, triage and history data for a finding and fetch it again.",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in FindingParams) (*sdkmcp.CallToolResult, any, error) {
		f, err := svc.Feeds.Open(ctx, strings.TrimSpace(in.FindingID))
		if err != nil {
			return errorResult(err), nil, nil
		}
		if err := f.Reload(ctx); err != nil {
			return errorResult(err), nil, nil
		}
		return jsonResult(buildActivityView(f.Snapshot(), 0, nil))
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_stream_state",
		Description: "Report the live connection state of followed findings.",
		Annotations: readOnly,
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in GetStreamStateParams) (*sdkmcp.CallToolResult, any, error) {
		ids := svc.Feeds.FindingIDs()
		if in.FindingID != "" {
			ids = []string{in.FindingID}
		}
		resp := StreamStateResponse{Streams: make([]StreamStatus, 0, len(ids))}
		for _, id := range ids {
			f, ok := svc.Feeds.Get(id)
			if !ok {
				continue
			}
			snap := f.Snapshot()
			resp.Streams = append(resp.Streams, StreamStatus{FindingID: id, State: snap.State, LiveCount: snap.Live})
		}
		return jsonResult(resp)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "unwatch_finding",
		Description: "Stop following a finding's live stream.",
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in FindingParams) (*sdkmcp.CallToolResult, any, error) {
		released := svc.Feeds.Release(in.FindingID)
		return jsonResult(UnwatchResponse{FindingID: in.FindingID, Released: released})
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_finding",
		Description: "Get the details of a finding.",
		Annotations: readOnly,
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in FindingParams) (*sdkmcp.CallToolResult, any, error) {
		f, err := svc.Findings.Get(ctx, strings.TrimSpace(in.FindingID))
		if err != nil {
			return errorResult(err), nil, nil
		}
		return jsonResult(f)
	})

	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        "get_triage",
		Description: "Get the latest AI triage result of a finding.",
		Annotations: readOnly,
	}, func(ctx context.Context, _ *sdkmcp.CallToolRequest, in FindingParams) (*sdkmcp.CallToolResult, any, error) {
		res, err := svc.Triage.Get(ctx, strings.TrimSpace(in.FindingID))
		if err != nil {
			return errorResult(err), nil, nil
		}
		return jsonResult(res)
	})
}

func buildActivityView(snap feed.Snapshot, limit int, types []string) ActivityView {
	view := ActivityView{
		FindingID:   snap.FindingID,
		StreamState: snap.State,
		LiveCount:   snap.Live,
		Total:       len(snap.Activities),
		FetchedAt:   snap.FetchedAt,
		Finding:     snap.Finding,
		Triage:      snap.Triage,
		Activities:  []ActivityItem{},
	}

	var keep map[activity.Type]bool
	if len(types) > 0 {
		keep = make(map[activity.Type]bool, len(types))
		for _, t := range types {
			keep[activity.Type(strings.ToLower(strings.TrimSpace(t)))] = true
		}
	}

	for _, rec := range snap.Activities {
		if keep != nil && !keep[rec.Type] {
			continue
		}
		if limit > 0 && len(view.Activities) >= limit {
			break
		}
		view.Activities = append(view.Activities, toActivityItem(rec))
	}
	view.Returned = len(view.Activities)
	return view
}

func toActivityItem(rec activity.Record) ActivityItem {
	return ActivityItem{
		ID:            rec.ID,
		Type:          rec.Type,
		Actor:         rec.Actor.DisplayName(),
		ActorKind:     rec.Actor.Kind,
		Content:       rec.Content,
		Payload:       rec.Payload,
		PreviousValue: deref(rec.PreviousValue),
		NewValue:      deref(rec.NewValue),
		CreatedAt:     rec.CreatedAt,
	}
}

func jsonResult(v any) (*sdkmcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}, nil, nil
}

func errorResult(err error) *sdkmcp.CallToolResult {
	data, marshalErr := json.Marshal(toAPIError(err))
	if marshalErr != nil {
		data = []byte(err.Error())
	}
	return &sdkmcp.CallToolResult{
		IsError: true,
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: string(data)}},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
