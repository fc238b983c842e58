package activity

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// DefaultType is used for backend activity types with no mapping.
const DefaultType = TypeStatusChanged

// backendTypes maps backend activity_type strings to record types. Several
// backend types collapse onto one display type.
var backendTypes = map[string]Type{
	"created":               TypeCreated,
	"finding_created":       TypeCreated,
	"status_changed":        TypeStatusChanged,
	"state_changed":         TypeStatusChanged,
	"resolved":              TypeStatusChanged,
	"auto_resolved":         TypeStatusChanged,
	"triage_updated":        TypeStatusChanged,
	"severity_changed":      TypeSeverityChanged,
	"assigned":              TypeAssigned,
	"assignee_changed":      TypeAssigned,
	"unassigned":            TypeUnassigned,
	"comment":               TypeComment,
	"commented":             TypeComment,
	"internal_note":         TypeInternalNote,
	"note_added":            TypeInternalNote,
	"evidence_added":        TypeEvidenceAdded,
	"remediation_started":   TypeRemediationStarted,
	"remediation_updated":   TypeRemediationUpdated,
	"verified":              TypeVerified,
	"reopened":              TypeReopened,
	"linked":                TypeLinked,
	"ticket_linked":         TypeLinked,
	"duplicate_marked":      TypeDuplicateMarked,
	"false_positive_marked": TypeFalsePositiveMarked,
	"ai_triage":             TypeAITriage,
	"ai_triage_requested":   TypeAITriageRequested,
	"ai_triage_failed":      TypeAITriageFailed,
}

// MapType converts a backend activity type to a record type. It never fails:
// unknown values map to DefaultType.
func MapType(backendType string) Type {
	if t, ok := backendTypes[strings.ToLower(strings.TrimSpace(backendType))]; ok {
		return t
	}
	return DefaultType
}

// MapActor resolves the actor of a raw activity.
func MapActor(raw RawActivity) Actor {
	switch strings.ToLower(raw.ActorType) {
	case string(ActorSystem):
		return SystemActor()
	case string(ActorAI):
		return AIActor()
	}
	name := raw.ActorName
	if name == "" {
		name = UnknownUserName
	}
	return Actor{
		Kind: ActorUser,
		User: &User{
			ID:    raw.ActorID,
			Name:  name,
			Email: raw.ActorEmail,
			Role:  raw.ActorRole,
		},
	}
}

// Normalize converts a raw backend activity into a Record.
func Normalize(raw RawActivity) Record {
	t := MapType(raw.ActivityType)
	bag := parseChanges(raw.Changes)

	rec := Record{
		ID:            raw.ID,
		FindingID:     raw.FindingID,
		Type:          t,
		Actor:         MapActor(raw),
		Content:       raw.Content,
		PreviousValue: raw.PreviousValue,
		NewValue:      raw.NewValue,
		CreatedAt:     parseTime(raw.CreatedAt),
	}
	if rec.Content == "" {
		rec.Content = bag.str("comment", "content", "text")
	}
	rec.Payload = buildPayload(t, raw.Changes, bag)

	if tp, ok := rec.Payload.(TransitionPayload); ok {
		if rec.PreviousValue == nil && tp.Previous != "" {
			prev := tp.Previous
			rec.PreviousValue = &prev
		}
		if rec.NewValue == nil && tp.New != "" {
			next := tp.New
			rec.NewValue = &next
		}
	}
	return rec
}

// NormalizeAll converts a slice of raw activities.
func NormalizeAll(raws []RawActivity) []Record {
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Normalize(raw))
	}
	return out
}

// NormalizePage converts a raw page.
func NormalizePage(raw RawPage) Page {
	return Page{
		Items:      NormalizeAll(raw.Items),
		Total:      raw.Total,
		Page:       raw.Page,
		PageSize:   raw.PageSize,
		TotalPages: raw.TotalPages,
	}
}

func buildPayload(t Type, rawChanges json.RawMessage, bag changes) Payload {
	if bag == nil {
		return nil
	}
	switch t {
	case TypeStatusChanged, TypeSeverityChanged, TypeVerified, TypeReopened, TypeFalsePositiveMarked:
		return TransitionPayload{
			Field:    bag.str("field"),
			Previous: bag.str("old_value", "from", "previous"),
			New:      bag.str("new_value", "to", "new"),
			Reason:   bag.str("reason", "justification"),
		}
	case TypeAssigned, TypeUnassigned:
		return AssignmentPayload{
			AssigneeID:    bag.str("assignee_id", "assigned_to"),
			AssigneeName:  bag.str("assignee_name"),
			AssigneeEmail: bag.str("assignee_email"),
		}
	case TypeAITriage, TypeAITriageRequested, TypeAITriageFailed:
		src, rawJSON := bag, rawChanges
		if nested, ok := bag["triage"]; ok {
			if inner := parseChanges(nested); inner != nil {
				src, rawJSON = inner, nested
			}
		}
		return TriagePayload{
			Status:    src.str("status"),
			Severity:  src.str("severity"),
			RiskScore: src.float("risk_score"),
			Summary:   src.str("summary", "reasoning"),
			Error:     src.str("error", "error_message"),
			Raw:       rawJSON,
		}
	case TypeLinked, TypeDuplicateMarked:
		return LinkPayload{
			TicketKey:   bag.str("ticket_key", "ticket_id"),
			TicketURL:   bag.str("ticket_url", "url"),
			DuplicateOf: bag.str("duplicate_of", "original_finding_id"),
		}
	case TypeEvidenceAdded:
		return EvidencePayload{
			Name: bag.str("name", "filename"),
			URL:  bag.str("url"),
		}
	case TypeRemediationStarted, TypeRemediationUpdated:
		return RemediationPayload{
			Plan:    bag.str("plan", "notes"),
			DueDate: bag.str("due_date"),
		}
	default:
		return nil
	}
}

type changes map[string]json.RawMessage

func parseChanges(data json.RawMessage) changes {
	if len(data) == 0 {
		return nil
	}
	var bag changes
	if err := json.Unmarshal(data, &bag); err != nil {
		return nil
	}
	return bag
}

// str returns the first key holding a scalar, rendered as a string.
func (c changes) str(keys ...string) string {
	for _, key := range keys {
		raw, ok := c[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return strconv.FormatBool(b)
		}
	}
	return ""
}

func (c changes) float(key string) float64 {
	raw, ok := c[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return 0
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
