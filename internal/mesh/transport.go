// Package mesh maintains the client-side full-mesh of peer links: exactly one
// link per remote participant, with initiator/responder roles assigned so
// that each pair has exactly one offerer.
package mesh

import "encoding/json"

// Role says which side of a peer link drives the handshake. The newcomer to a
// room initiates toward everyone already present; existing members only
// respond.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// TransportState is the coarse connection state reported by a link's
// handshake engine.
type TransportState string

const (
	TransportConnected TransportState = "connected"
	TransportFailed    TransportState = "failed"
	TransportClosed    TransportState = "closed"
)

// ControlMessage is advisory UI state exchanged over the per-link control
// data channel. It is never correctness-critical.
type ControlMessage struct {
	Muted    bool `msgpack:"muted"`
	Speaking bool `msgpack:"speaking"`
}

// TransportEvents are callbacks a LinkTransport fires as the handshake
// progresses. They may be delivered from arbitrary goroutines, but must never
// be invoked synchronously from within a LinkTransport method call.
type TransportEvents struct {
	// OnICECandidate delivers a locally gathered candidate payload that
	// must be relayed to the remote peer.
	OnICECandidate func(payload json.RawMessage)

	// OnStateChange reports coarse connection state transitions.
	OnStateChange func(state TransportState)

	// OnControl delivers advisory state received from the remote peer.
	OnControl func(msg ControlMessage)

	// OnSpeaking reports voice-activity edges measured on the remote
	// media stream. Advisory UI state only.
	OnSpeaking func(speaking bool)
}

// LinkTransport is the handshake engine behind a single peer link. The mesh
// layer treats SDP and ICE payloads as opaque bytes; interpreting them is the
// engine's business.
type LinkTransport interface {
	// CreateOffer produces the local offer. Initiator side only.
	CreateOffer() (json.RawMessage, error)

	// HandleOffer applies a remote offer and produces the answer.
	// Responder side only.
	HandleOffer(offer json.RawMessage) (json.RawMessage, error)

	// HandleAnswer applies the remote answer to a sent offer.
	HandleAnswer(answer json.RawMessage) error

	// AddICECandidate applies a remote candidate. Callers must only
	// invoke this once the remote description has been applied.
	AddICECandidate(candidate json.RawMessage) error

	// SendControl ships advisory state to the remote peer. A transport
	// whose control channel is not open yet may drop the message.
	SendControl(msg ControlMessage) error

	// Close releases the engine and its media resources. Idempotent.
	Close() error
}

// TransportFactory builds the handshake engine for one peer link.
type TransportFactory func(role Role, events TransportEvents) (LinkTransport, error)
