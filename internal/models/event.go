package models

import "time"

// Broadcast channel names. Every connection joins the public channels;
// registered identities additionally get a private identity channel and
// privileged roles join the operational channels.
const (
	ChannelListings   = "listings"     // public: property status updates
	ChannelMarket     = "market"       // public: market-wide announcements
	ChannelAgentAlert = "agent:alerts" // operational: hot-lead notifications
	ChannelOps        = "ops"          // operational: engine state changes
)

// IdentityChannel returns the private channel name for a registered identity
func IdentityChannel(identityID string) string {
	return "identity:" + identityID
}

// ClientEvent is an inbound message from a connected client
type ClientEvent struct {
	Type      string            `json:"type"` // "activity", "state_change", or "ping"
	Kind      ActivityKind      `json:"kind,omitempty"`
	SubjectID string            `json:"subject_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp,omitempty"`

	// State-change fields (e.g. a property status update fanned out to
	// subscribers rather than scored)
	Channel string                 `json:"channel,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`

	// Contact capture, filled in as the visitor provides it
	Contact *ContactInfo `json:"contact,omitempty"`
}

// ServerMessage is an outbound message to a connected client
type ServerMessage struct {
	Type         string                 `json:"type"` // "connected", "ack", "broadcast", "queued_message", "pong", "error"
	Channel      string                 `json:"channel,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	Score        int                    `json:"score,omitempty"`
	Category     LeadCategory           `json:"category,omitempty"`
	ErrorCode    string                 `json:"code,omitempty"`
	ErrorMessage string                 `json:"message,omitempty"`
}
