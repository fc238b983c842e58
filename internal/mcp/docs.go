package mcp

import (
	"context"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const serverInstructions = `triagewatch follows the activity of CTEM findings and keeps one
de-duplicated activity list per finding.

Workflow:
1) get_finding_activity(finding_id) returns the current list and starts following
   the finding's live stream. Call it again to see new events.
2) post_comment(finding_id, content) adds a comment. It appears in the list once the
   backend confirms it; nothing is inserted optimistically.
3) get_finding / get_triage return details. When an AI triage run finishes, both are
   refreshed automatically, along with the history page.
4) refresh_finding forces a refetch; get_stream_state reports connection health;
   unwatch_finding stops following a finding.

Docs:
- triagewatch://docs/index
- triagewatch://docs/activity-model
`

type docResource struct {
	URI         string
	Name        string
	Title       string
	Description string
	Content     string
}

var docResources = []docResource{
	{
		URI:         "triagewatch://docs/index",
		Name:        "docs_index",
		Title:       "triagewatch docs index",
		Description: "Entry point: which tools exist and when to use them.",
		Content: `# triagewatch

## Tools

| Tool | Use |
|---|---|
| get_finding_activity | Reconciled activity list, newest live events first. Optional limit and type filter. |
| post_comment | Add a comment. Errors are reported, never hidden. |
| refresh_finding | Drop cached data for a finding and fetch again. |
| get_finding | Finding details (title, severity, status, assignee). |
| get_triage | Latest AI triage result (status, severity, risk score, summary). |
| get_stream_state | connecting, connected or disconnected per followed finding. |
| unwatch_finding | Stop following a finding. |

## Known limitations

- Only the first history page is merged with live events.
- Stream state is advisory; a disconnected stream reconnects on its own with backoff.
- A live event and its fetched copy share an id; the live copy is shown.
`,
	},
	{
		URI:         "triagewatch://docs/activity-model",
		Name:        "docs_activity_model",
		Title:       "Activity model",
		Description: "Activity types, actors and ordering rules.",
		Content: `# Activity model

## Types

created, status_changed, severity_changed, assigned, unassigned, comment,
internal_note, evidence_added, remediation_started, remediation_updated, verified,
reopened, linked, duplicate_marked, false_positive_marked, ai_triage,
ai_triage_requested, ai_triage_failed.

Several backend types collapse onto one: resolved, auto_resolved, triage_updated and
state_changed are all reported as status_changed. Unknown backend types are reported
as status_changed as well.

## Actors

- actor_kind "user": actor is the user's name, or "Unknown User".
- actor_kind "system" or "ai": automated changes.

## Ordering

1. Live events received since the finding was opened, most recent first.
2. Fetched history, in backend order, minus any id already seen live.

The list is not sorted by timestamp.

## Triage completion

An ai_triage or ai_triage_failed live event marks the triage result, the finding and
the activity history stale. The history is refetched right away; finding and triage
details are refetched on the next read.
`,
	},
}

func registerDocResources(server *sdkmcp.Server) {
	for _, doc := range docResources {
		doc := doc

		server.AddResource(&sdkmcp.Resource{
			URI:         doc.URI,
			Name:        doc.Name,
			Title:       doc.Title,
			Description: doc.Description,
			MIMEType:    "text/markdown",
			Size:        int64(len(doc.Content)),
		}, func(_ context.Context, req *sdkmcp.ReadResourceRequest) (*sdkmcp.ReadResourceResult, error) {
			uri := doc.URI
			if req != nil && req.Params != nil && req.Params.URI != "" {
				uri = req.Params.URI
			}
			return &sdkmcp.ReadResourceResult{
				Contents: []*sdkmcp.ResourceContents{{
					URI:      uri,
					MIMEType: "text/markdown",
					Text:     doc.Content,
				}},
			}, nil
		})
	}
}
