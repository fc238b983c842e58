package functional_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/triagewatch/internal/backend"
	"github.com/rpggio/triagewatch/internal/cache"
	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/rpggio/triagewatch/internal/domain/finding"
	"github.com/rpggio/triagewatch/internal/domain/triage"
	"github.com/rpggio/triagewatch/internal/feed"
	"github.com/rpggio/triagewatch/internal/mcp"
	"github.com/rpggio/triagewatch/internal/stream"
	"github.com/rpggio/triagewatch/internal/testserver"
	"github.com/rpggio/triagewatch/internal/transport"
)

const apiToken = "client-token"

type env struct {
	backend *testserver.TestServer
	server  *httptest.Server
}

// newEnv runs the full HTTP stack against a fake backend.
func newEnv(t *testing.T) *env {
	t.Helper()
	ts := testserver.New(t, "backend-token")

	client, err := backend.NewClient(backend.Config{BaseURL: ts.URL(), Token: ts.Token, RetryAttempts: 2, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)
	c := cache.New(cache.NewMemory(), cache.Options{TTL: time.Minute})
	findings := finding.NewService(client, c, nil)
	triages := triage.NewService(client, c, nil)
	feeds := feed.NewRegistry(feed.Deps{
		Activities: activity.NewService(client, nil),
		Findings:   findings,
		Triage:     triages,
		Cache:      c,
		Dialer:     client,
		Stream:     stream.Options{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond},
	})

	tokens := transport.StaticTokens{apiToken}
	mcpServer := mcp.NewServer(mcp.Config{
		Services:      mcp.Services{Feeds: feeds, Findings: findings, Triage: triages},
		Resolver:      tokens,
		AuthEnabled:   true,
		TransportMode: "http",
	})
	handler := sdkmcp.NewStreamableHTTPHandler(func(*http.Request) *sdkmcp.Server { return mcpServer }, nil)

	srv := httptest.NewServer(transport.NewServer(transport.Config{
		Feeds: feeds,
		MCP:   handler,
		Auth:  transport.AuthMiddleware(tokens),
	}))
	t.Cleanup(func() {
		srv.Close()
		feeds.Close()
	})

	return &env{backend: ts, server: srv}
}

type bearer struct {
	token string
	next  http.RoundTripper
}

func (b bearer) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}

func (e *env) connect(t *testing.T) *sdkmcp.ClientSession {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.StreamableClientTransport{
		Endpoint:   e.server.URL + "/mcp",
		HTTPClient: &http.Client{Transport: bearer{token: apiToken, next: http.DefaultTransport}},
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func (e *env) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+apiToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func toolText(res *sdkmcp.CallToolResult) string {
	if res == nil || len(res.Content) == 0 {
		return ""
	}
	if text, ok := res.Content[0].(*sdkmcp.TextContent); ok {
		return text.Text
	}
	return ""
}

func TestHTTP_HealthIsPublic(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHTTP_RejectsMissingToken(t *testing.T) {
	e := newEnv(t)
	resp, err := http.Get(e.server.URL + "/findings/f1/activities")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_ActivitiesReconcileLiveAndFetched(t *testing.T) {
	e := newEnv(t)
	e.backend.AddFinding(finding.Finding{ID: "f1", Title: "Open SSH", Severity: "high"})
	e.backend.AddActivities("f1",
		activity.RawActivity{ID: "b", ActivityType: "assigned", ActorType: "user", ActorName: "Ana"},
		activity.RawActivity{ID: "a", ActivityType: "finding_created", ActorType: "system"},
	)

	resp := e.do(t, http.MethodGet, "/findings/f1/activities", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool { return e.backend.StreamCount("f1") == 1 }, 2*time.Second, 10*time.Millisecond)

	e.backend.Publish("f1", activity.RawActivity{ID: "c", ActivityType: "commented", ActorType: "user", ActorName: "Bo", Content: "patching"})

	var ids []string
	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodGet, e.server.URL+"/findings/f1/activities", nil)
		req.Header.Set("Authorization", "Bearer "+apiToken)
		r, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var snap feed.Snapshot
		if json.NewDecoder(r.Body).Decode(&snap) != nil {
			return false
		}
		ids = ids[:0]
		for _, rec := range snap.Activities {
			ids = append(ids, rec.ID)
		}
		return len(ids) == 3
	}, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, []string{"c", "b", "a"}, ids)
}

func TestHTTP_TriageCompletionRefreshesCachedTriage(t *testing.T) {
	e := newEnv(t)
	e.backend.AddFinding(finding.Finding{ID: "f1", Title: "Weak TLS", Severity: "low"})
	e.backend.SetTriage(triage.Result{FindingID: "f1", Status: triage.StatusPending})
	session := e.connect(t)
	ctx := context.Background()

	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "get_finding_activity", Arguments: map[string]any{"finding_id": "f1"}})
	require.NoError(t, err)
	require.False(t, res.IsError, toolText(res))
	require.Eventually(t, func() bool { return e.backend.StreamCount("f1") == 1 }, 2*time.Second, 10*time.Millisecond)

	e.backend.SetTriage(triage.Result{FindingID: "f1", Status: triage.StatusCompleted, Severity: "critical", RiskScore: 9.1})
	res, err = session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "get_triage", Arguments: map[string]any{"finding_id": "f1"}})
	require.NoError(t, err)
	require.Contains(t, toolText(res), `"pending"`)

	e.backend.Publish("f1", activity.RawActivity{
		ActivityType: "ai_triage",
		ActorType:    "ai",
		Changes:      json.RawMessage(`{"status":"completed","severity":"critical"}`),
	})

	require.Eventually(t, func() bool {
		res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "get_triage", Arguments: map[string]any{"finding_id": "f1"}})
		return err == nil && !res.IsError && strings.Contains(toolText(res), `"critical"`)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHTTP_PostCommentThenUnwatch(t *testing.T) {
	e := newEnv(t)
	e.backend.AddFinding(finding.Finding{ID: "f1", Title: "Stale cert"})

	resp := e.do(t, http.MethodPost, "/findings/f1/comments", map[string]string{"content": "renewing today"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		req, _ := http.NewRequest(http.MethodGet, e.server.URL+"/findings/f1/activities", nil)
		req.Header.Set("Authorization", "Bearer "+apiToken)
		r, err := http.DefaultClient.Do(req)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		var snap feed.Snapshot
		if json.NewDecoder(r.Body).Decode(&snap) != nil {
			return false
		}
		for _, rec := range snap.Activities {
			if rec.Type == activity.TypeComment && rec.Content == "renewing today" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)

	resp = e.do(t, http.MethodDelete, "/findings/f1/watch", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = e.do(t, http.MethodDelete, "/findings/f1/watch", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_EmptyCommentRejected(t *testing.T) {
	e := newEnv(t)
	resp := e.do(t, http.MethodPost, "/findings/f1/comments", map[string]string{"content": "  "})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Zero(t, e.backend.Requests("/findings/f1/comments"))
}
