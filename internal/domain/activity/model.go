package activity

import (
	"encoding/json"
	"time"
)

// Type represents the type of a finding activity event.
type Type string

const (
	TypeCreated             Type = "created"
	TypeStatusChanged       Type = "status_changed"
	TypeSeverityChanged     Type = "severity_changed"
	TypeAssigned            Type = "assigned"
	TypeUnassigned          Type = "unassigned"
	TypeComment             Type = "comment"
	TypeInternalNote        Type = "internal_note"
	TypeEvidenceAdded       Type = "evidence_added"
	TypeRemediationStarted  Type = "remediation_started"
	TypeRemediationUpdated  Type = "remediation_updated"
	TypeVerified            Type = "verified"
	TypeReopened            Type = "reopened"
	TypeLinked              Type = "linked"
	TypeDuplicateMarked     Type = "duplicate_marked"
	TypeFalsePositiveMarked Type = "false_positive_marked"
	TypeAITriage            Type = "ai_triage"
	TypeAITriageRequested   Type = "ai_triage_requested"
	TypeAITriageFailed      Type = "ai_triage_failed"
)

// Types lists every valid activity type.
var Types = []Type{
	TypeCreated,
	TypeStatusChanged,
	TypeSeverityChanged,
	TypeAssigned,
	TypeUnassigned,
	TypeComment,
	TypeInternalNote,
	TypeEvidenceAdded,
	TypeRemediationStarted,
	TypeRemediationUpdated,
	TypeVerified,
	TypeReopened,
	TypeLinked,
	TypeDuplicateMarked,
	TypeFalsePositiveMarked,
	TypeAITriage,
	TypeAITriageRequested,
	TypeAITriageFailed,
}

// Valid reports whether t is one of the known activity types.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// ActorKind distinguishes human actors from automated ones.
type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorSystem ActorKind = "system"
	ActorAI     ActorKind = "ai"
)

// UnknownUserName is used when the backend omits the actor name.
const UnknownUserName = "Unknown User"

// Actor identifies who caused an activity. User is only set for ActorUser.
type Actor struct {
	Kind ActorKind `json:"kind"`
	User *User     `json:"user,omitempty"`
}

// User is a human actor.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// SystemActor returns the system sentinel actor.
func SystemActor() Actor { return Actor{Kind: ActorSystem} }

// AIActor returns the AI sentinel actor.
func AIActor() Actor { return Actor{Kind: ActorAI} }

// DisplayName returns a human-readable actor label.
func (a Actor) DisplayName() string {
	switch a.Kind {
	case ActorSystem:
		return "system"
	case ActorAI:
		return "ai"
	}
	if a.User == nil || a.User.Name == "" {
		return UnknownUserName
	}
	return a.User.Name
}

// Payload is the type-specific part of a record.
type Payload interface {
	payload()
}

// TransitionPayload describes a field moving from one value to another.
type TransitionPayload struct {
	Field    string `json:"field,omitempty"`
	Previous string `json:"previous,omitempty"`
	New      string `json:"new,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// AssignmentPayload describes an assignee change.
type AssignmentPayload struct {
	AssigneeID    string `json:"assignee_id,omitempty"`
	AssigneeName  string `json:"assignee_name,omitempty"`
	AssigneeEmail string `json:"assignee_email,omitempty"`
}

// TriagePayload carries the outcome of an AI triage run.
type TriagePayload struct {
	Status    string          `json:"status,omitempty"`
	Severity  string          `json:"severity,omitempty"`
	RiskScore float64         `json:"risk_score,omitempty"`
	Summary   string          `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// LinkPayload describes a link to an external ticket or a duplicate finding.
type LinkPayload struct {
	TicketKey   string `json:"ticket_key,omitempty"`
	TicketURL   string `json:"ticket_url,omitempty"`
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// EvidencePayload describes attached evidence.
type EvidencePayload struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}

// RemediationPayload describes remediation progress.
type RemediationPayload struct {
	Plan    string `json:"plan,omitempty"`
	DueDate string `json:"due_date,omitempty"`
}

func (TransitionPayload) payload()  {}
func (AssignmentPayload) payload()  {}
func (TriagePayload) payload()      {}
func (LinkPayload) payload()        {}
func (EvidencePayload) payload()    {}
func (RemediationPayload) payload() {}

// Record is a normalized, immutable finding activity.
type Record struct {
	ID            string    `json:"id"`
	FindingID     string    `json:"finding_id"`
	Type          Type      `json:"type"`
	Actor         Actor     `json:"actor"`
	Content       string    `json:"content,omitempty"`
	Payload       Payload   `json:"payload,omitempty"`
	PreviousValue *string   `json:"previous_value,omitempty"`
	NewValue      *string   `json:"new_value,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Page is one page of a finding's activity history.
type Page struct {
	Items      []Record `json:"items"`
	Total      int      `json:"total"`
	Page       int      `json:"page"`
	PageSize   int      `json:"page_size"`
	TotalPages int      `json:"total_pages"`
}

// RawActivity is an activity as the backend sends it.
type RawActivity struct {
	ID            string          `json:"id"`
	FindingID     string          `json:"finding_id"`
	ActivityType  string          `json:"activity_type"`
	ActorType     string          `json:"actor_type"`
	ActorID       string          `json:"actor_id,omitempty"`
	ActorName     string          `json:"actor_name,omitempty"`
	ActorEmail    string          `json:"actor_email,omitempty"`
	ActorRole     string          `json:"actor_role,omitempty"`
	Content       string          `json:"content,omitempty"`
	Changes       json.RawMessage `json:"changes,omitempty"`
	PreviousValue *string         `json:"previous_value,omitempty"`
	NewValue      *string         `json:"new_value,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

// RawPage is a page of raw activities as the backend sends it.
type RawPage struct {
	Items      []RawActivity `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
	TotalPages int           `json:"total_pages"`
}
