package activity

import (
	"encoding/json"
	"fmt"
)

// newPayload returns an empty payload of the kind carried by t, or nil when
// the type carries no payload.
func newPayload(t Type) Payload {
	switch t {
	case TypeStatusChanged, TypeSeverityChanged, TypeVerified, TypeReopened, TypeFalsePositiveMarked:
		return &TransitionPayload{}
	case TypeAssigned, TypeUnassigned:
		return &AssignmentPayload{}
	case TypeAITriage, TypeAITriageRequested, TypeAITriageFailed:
		return &TriagePayload{}
	case TypeLinked, TypeDuplicateMarked:
		return &LinkPayload{}
	case TypeEvidenceAdded:
		return &EvidencePayload{}
	case TypeRemediationStarted, TypeRemediationUpdated:
		return &RemediationPayload{}
	default:
		return nil
	}
}

// deref turns the pointer returned by newPayload back into a value payload.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *TransitionPayload:
		return *v
	case *AssignmentPayload:
		return *v
	case *TriagePayload:
		return *v
	case *LinkPayload:
		return *v
	case *EvidencePayload:
		return *v
	case *RemediationPayload:
		return *v
	default:
		return p
	}
}

// UnmarshalJSON decodes the payload into the concrete type implied by Type.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		Payload json.RawMessage `json:"payload,omitempty"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.plain)
	r.Payload = nil

	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		return nil
	}
	p := newPayload(r.Type)
	if p == nil {
		return nil
	}
	if err := json.Unmarshal(aux.Payload, p); err != nil {
		return fmt.Errorf("decoding %s payload: %w", r.Type, err)
	}
	r.Payload = deref(p)
	return nil
}
