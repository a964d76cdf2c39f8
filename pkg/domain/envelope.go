package domain

import "encoding/json"

// EnvelopeType is the message type of the replication protocol.
type EnvelopeType string

const (
	// EnvelopeContent carries a request's immutable content source -> target.
	EnvelopeContent EnvelopeType = "content"
	// EnvelopeResponse carries the target's current response target -> source.
	EnvelopeResponse EnvelopeType = "response"
	// EnvelopeRemove withdraws a request source -> target.
	EnvelopeRemove EnvelopeType = "remove"
)

// Envelope is the unit exchanged between agents.
type Envelope struct {
	Type      EnvelopeType    `json:"type"`
	RelayKind string          `json:"relay_kind"`
	RequestID UID             `json:"request_id"`
	From      AgentID         `json:"from"`
	To        AgentID         `json:"to"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
