package tap

import (
	"encoding/json"
	"fmt"
)

const (
	eventTypeRecord   = "record"
	eventTypeIdentity = "identity"
	eventTypeACK      = "ack"
)

// Event is a single Tap ingress message: either a Record or an Identity
// event, discriminated by Type.
type Event struct {
	ID       uint64
	Type     string
	record   *RecordEvent
	identity *IdentityEvent
}

// RecordEvent describes a create, update, or delete of a single record
// within an indexed repo.
type RecordEvent struct {
	DID        string          `json:"did"`
	Collection string          `json:"collection"`
	Rkey       string          `json:"rkey"`
	Rev        string          `json:"rev"`
	Action     string          `json:"action"`
	CID        *string         `json:"cid,omitempty"`
	Record     json.RawMessage `json:"record,omitempty"`
	Live       bool            `json:"live"`
}

// IdentityEvent describes a change to a repo's identity: handle, active
// status, or account status.
type IdentityEvent struct {
	DID      string  `json:"did"`
	Handle   *string `json:"handle,omitempty"`
	IsActive bool    `json:"isActive"`
	Status   *string `json:"status,omitempty"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	event := struct {
		ID       uint64          `json:"id"`
		Type     string          `json:"type"`
		Record   json.RawMessage `json:"record,omitempty"`
		Identity json.RawMessage `json:"identity,omitempty"`
	}{}

	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("failed to unmarshal tap event: %w", err)
	}

	e.ID = event.ID
	e.Type = event.Type

	switch event.Type {
	case eventTypeRecord:
		e.record = &RecordEvent{}
		if err := json.Unmarshal(event.Record, e.record); err != nil {
			return fmt.Errorf("failed to unmarshal tap record event: %w", err)
		}
	case eventTypeIdentity:
		e.identity = &IdentityEvent{}
		if err := json.Unmarshal(event.Identity, e.identity); err != nil {
			return fmt.Errorf("failed to unmarshal tap identity event: %w", err)
		}
	default:
		return fmt.Errorf("unknown event type %q", event.Type)
	}

	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	event := struct {
		ID       uint64         `json:"id"`
		Type     string         `json:"type"`
		Record   *RecordEvent   `json:"record,omitempty"`
		Identity *IdentityEvent `json:"identity,omitempty"`
	}{
		ID:       e.ID,
		Type:     e.Type,
		Record:   e.record,
		Identity: e.identity,
	}

	buf, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tap event: %w", err)
	}

	return buf, nil
}

// Payload returns the event's concrete *RecordEvent or *IdentityEvent.
func (e *Event) Payload() any {
	switch e.Type {
	case eventTypeRecord:
		return e.record
	case eventTypeIdentity:
		return e.identity
	}

	return nil // unreachable
}

type ackPayload struct {
	Type string `json:"type"` // Always "ack"
	ID   uint64 `json:"id"`
}

func newACKPayload(id uint64) *ackPayload {
	return &ackPayload{
		Type: eventTypeACK,
		ID:   id,
	}
}
