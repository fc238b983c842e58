package activity_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rpggio/triagewatch/internal/domain/activity"
	"github.com/stretchr/testify/require"
)

func TestMapType_Total(t *testing.T) {
	inputs := []string{
		"", "unknown", "STATUS_CHANGED", " comment ", "resolved", "auto_resolved",
		"triage_updated", "ai_triage", "ai_triage_failed", "ai_triage_requested",
		"something_new_from_backend", "💥",
	}
	for _, typ := range activity.Types {
		inputs = append(inputs, string(typ))
	}

	for _, in := range inputs {
		got := activity.MapType(in)
		require.True(t, got.Valid(), "MapType(%q) returned %q", in, got)
	}
}

func TestMapType_Collapses(t *testing.T) {
	for _, in := range []string{"resolved", "auto_resolved", "triage_updated", "state_changed"} {
		require.Equal(t, activity.TypeStatusChanged, activity.MapType(in), in)
	}
	require.Equal(t, activity.TypeComment, activity.MapType("commented"))
	require.Equal(t, activity.TypeInternalNote, activity.MapType("note_added"))
	require.Equal(t, activity.TypeLinked, activity.MapType("ticket_linked"))
	require.Equal(t, activity.DefaultType, activity.MapType("no_such_type"))
}

func TestMapType_Identity(t *testing.T) {
	for _, typ := range activity.Types {
		require.Equal(t, typ, activity.MapType(string(typ)))
	}
}

func TestMapActor(t *testing.T) {
	system := activity.MapActor(activity.RawActivity{ActorType: "system", ActorName: "scanner"})
	require.Equal(t, activity.ActorSystem, system.Kind)
	require.Nil(t, system.User)

	ai := activity.MapActor(activity.RawActivity{ActorType: "ai"})
	require.Equal(t, activity.ActorAI, ai.Kind)
	require.Nil(t, ai.User)

	anon := activity.MapActor(activity.RawActivity{ActorType: "user", ActorID: "u1"})
	require.Equal(t, activity.ActorUser, anon.Kind)
	require.NotNil(t, anon.User)
	require.Equal(t, activity.UnknownUserName, anon.User.Name)
	require.Equal(t, "", anon.User.Email)

	named := activity.MapActor(activity.RawActivity{
		ActorType:  "",
		ActorID:    "u2",
		ActorName:  "Dana",
		ActorEmail: "dana@example.com",
		ActorRole:  "analyst",
	})
	require.Equal(t, activity.ActorUser, named.Kind)
	require.Equal(t, &activity.User{ID: "u2", Name: "Dana", Email: "dana@example.com", Role: "analyst"}, named.User)
	require.Equal(t, "Dana", named.DisplayName())
}

func TestNormalize_Assignment(t *testing.T) {
	rec := activity.Normalize(activity.RawActivity{
		ID:           "a1",
		FindingID:    "f1",
		ActivityType: "assigned",
		ActorType:    "user",
		ActorName:    "Lee",
		Changes:      json.RawMessage(`{"assignee_id":"u9","assignee_name":"Sam","assignee_email":"sam@example.com"}`),
		CreatedAt:    "2026-02-03T04:05:06Z",
	})

	require.Equal(t, activity.TypeAssigned, rec.Type)
	require.Equal(t, "f1", rec.FindingID)
	require.Equal(t, activity.AssignmentPayload{
		AssigneeID:    "u9",
		AssigneeName:  "Sam",
		AssigneeEmail: "sam@example.com",
	}, rec.Payload)
	require.Equal(t, time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC), rec.CreatedAt)
}

func TestNormalize_TransitionFillsSnapshot(t *testing.T) {
	rec := activity.Normalize(activity.RawActivity{
		ID:           "a2",
		ActivityType: "resolved",
		ActorType:    "system",
		Changes:      json.RawMessage(`{"field":"status","old_value":"open","new_value":"resolved"}`),
	})

	require.Equal(t, activity.TypeStatusChanged, rec.Type)
	require.NotNil(t, rec.PreviousValue)
	require.NotNil(t, rec.NewValue)
	require.Equal(t, "open", *rec.PreviousValue)
	require.Equal(t, "resolved", *rec.NewValue)
	require.True(t, rec.CreatedAt.IsZero())
}

func TestNormalize_TriagePayload(t *testing.T) {
	triageJSON := `{"status":"completed","severity":"high","risk_score":8.5,"summary":"exploitable"}`
	rec := activity.Normalize(activity.RawActivity{
		ID:           "a3",
		ActivityType: "ai_triage",
		ActorType:    "ai",
		Changes:      json.RawMessage(`{"triage":` + triageJSON + `}`),
	})

	payload, ok := rec.Payload.(activity.TriagePayload)
	require.True(t, ok)
	require.Equal(t, "completed", payload.Status)
	require.Equal(t, "high", payload.Severity)
	require.InDelta(t, 8.5, payload.RiskScore, 0.0001)
	require.Equal(t, "exploitable", payload.Summary)
	require.JSONEq(t, triageJSON, string(payload.Raw))
}

func TestNormalize_BadChangesIsNotAnError(t *testing.T) {
	rec := activity.Normalize(activity.RawActivity{
		ID:           "a4",
		ActivityType: "assigned",
		Changes:      json.RawMessage(`[1,2,3]`),
		CreatedAt:    "not a time",
	})
	require.Equal(t, activity.TypeAssigned, rec.Type)
	require.Nil(t, rec.Payload)
	require.True(t, rec.CreatedAt.IsZero())
}

func TestNormalize_CommentFromChanges(t *testing.T) {
	rec := activity.Normalize(activity.RawActivity{
		ID:           "a5",
		ActivityType: "commented",
		Changes:      json.RawMessage(`{"comment":"looks real"}`),
	})
	require.Equal(t, activity.TypeComment, rec.Type)
	require.Equal(t, "looks real", rec.Content)
	require.Nil(t, rec.Payload)
}

func TestRecord_JSONRoundTripKeepsPayloadType(t *testing.T) {
	rec := activity.Normalize(activity.RawActivity{
		ID:           "a6",
		ActivityType: "ticket_linked",
		Changes:      json.RawMessage(`{"ticket_key":"SEC-12","ticket_url":"https://jira.example.com/SEC-12"}`),
		CreatedAt:    "2026-02-03T04:05:06Z",
	})

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var decoded activity.Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, rec, decoded)
	require.IsType(t, activity.LinkPayload{}, decoded.Payload)
}
