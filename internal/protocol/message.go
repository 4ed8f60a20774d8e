// Package protocol defines the websocket message catalogue exchanged between
// clients and the signaling relay. Every frame in either direction is an
// Envelope; the set of types below is closed and dispatch over it must handle
// unknown types as protocol errors.
package protocol

import "encoding/json"

// Type discriminates the payload carried by an Envelope.
type Type string

// Client to relay.
const (
	TypeJoin         Type = "join"
	TypeOffer        Type = "offer"
	TypeAnswer       Type = "answer"
	TypeICECandidate Type = "iceCandidate"
	TypeChatSend     Type = "chatSend"
	TypeSetMuted     Type = "setMuted"
	TypeKick         Type = "kick"
)

// Relay to client. Offer, answer and iceCandidate reuse the constants above;
// direction decides which payload struct applies.
const (
	TypeJoinConfirmed     Type = "joinConfirmed"
	TypeParticipantJoined Type = "participantJoined"
	TypeParticipantLeft   Type = "participantLeft"
	TypeChatReceived      Type = "chatReceived"
	TypeParticipantMuted  Type = "participantMuted"
	TypeYouWereKicked     Type = "youWereKicked"
	TypeParticipantKicked Type = "participantKicked"
	TypeProtocolError     Type = "protocolError"
)

// Envelope frames every websocket message.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps payload in an Envelope of the given type.
func NewEnvelope(t Type, payload any) (*Envelope, error) {
	if payload == nil {
		return &Envelope{Type: t}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: t, Payload: b}, nil
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// Join asks the relay to enter a room.
type Join struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	MediaTag string `json:"mediaTag"`
}

// RosterEntry describes one existing member in a join confirmation.
type RosterEntry struct {
	Identity string `json:"identity"`
	Username string `json:"username"`
	MediaTag string `json:"mediaTag"`
	Muted    bool   `json:"muted"`
}

// JoinConfirmed is sent to the joiner only. Others excludes the joiner.
type JoinConfirmed struct {
	Others    []RosterEntry `json:"others"`
	IsCreator bool          `json:"isCreator"`
}

// ParticipantJoined announces a new member to the rest of the room.
type ParticipantJoined struct {
	Identity string `json:"identity"`
	Username string `json:"username"`
	MediaTag string `json:"mediaTag"`
}

// ParticipantLeft announces a departure to the rest of the room.
type ParticipantLeft struct {
	Identity string `json:"identity"`
}

// Signal carries an opaque handshake payload (SDP or ICE candidate). Clients
// set TargetIdentity; the relay rewrites the frame with FromIdentity before
// forwarding. The payload is never interpreted by the relay.
type Signal struct {
	TargetIdentity string          `json:"targetIdentity,omitempty"`
	FromIdentity   string          `json:"fromIdentity,omitempty"`
	Payload        json.RawMessage `json:"payload"`
}

// ChatSend submits a chat message for broadcast.
type ChatSend struct {
	Text string `json:"text"`
}

// ChatReceived is broadcast to every room member, sender included.
type ChatReceived struct {
	FromIdentity string `json:"fromIdentity"`
	Username     string `json:"username"`
	Text         string `json:"text"`
	Timestamp    int64  `json:"timestamp"`
}

// SetMuted updates the sender's mute flag.
type SetMuted struct {
	Muted bool `json:"muted"`
}

// ParticipantMuted announces a mute change to the other room members.
type ParticipantMuted struct {
	Identity string `json:"identity"`
	Muted    bool   `json:"muted"`
}

// Kick asks the relay to remove a participant. Creator only.
type Kick struct {
	TargetIdentity string `json:"targetIdentity"`
}

// ParticipantKicked announces a removal to the remaining members.
type ParticipantKicked struct {
	Identity string `json:"identity"`
}

// ProtocolError reports a rejected or malformed request to its sender.
type ProtocolError struct {
	Message string `json:"message"`
}
