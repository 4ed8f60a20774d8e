package mesh

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/looplab/fsm"
)

// Link handshake states.
const (
	LinkStateNew         = "new"
	LinkStateNegotiating = "negotiating"
	LinkStateConnected   = "connected"
	LinkStateClosed      = "closed"

	linkEventNegotiate = "negotiate"
	linkEventEstablish = "establish"
	linkEventClose     = "close"
)

// PeerLink is the client-local handle for one remote participant. It is owned
// exclusively by its Orchestrator, which serializes all access.
type PeerLink struct {
	remote    string
	role      Role
	transport LinkTransport
	machine   *fsm.FSM

	// Candidates that arrived before the remote description was applied.
	// They are replayed once it is, never dropped.
	pending     []json.RawMessage
	remoteReady bool
}

func newPeerLink(remote string, role Role, transport LinkTransport) *PeerLink {
	return &PeerLink{
		remote:    remote,
		role:      role,
		transport: transport,
		machine: fsm.NewFSM(
			LinkStateNew,
			fsm.Events{
				{Name: linkEventNegotiate, Src: []string{LinkStateNew}, Dst: LinkStateNegotiating},
				{Name: linkEventEstablish, Src: []string{LinkStateNegotiating}, Dst: LinkStateConnected},
				{Name: linkEventClose, Src: []string{LinkStateNew, LinkStateNegotiating, LinkStateConnected}, Dst: LinkStateClosed},
			},
			fsm.Callbacks{},
		),
	}
}

// Remote returns the remote connection identity.
func (l *PeerLink) Remote() string { return l.remote }

// Role returns whether this side initiated the link.
func (l *PeerLink) Role() Role { return l.role }

// State returns the current handshake state.
func (l *PeerLink) State() string { return l.machine.Current() }

func (l *PeerLink) markNegotiating() {
	_ = l.machine.Event(context.Background(), linkEventNegotiate)
}

func (l *PeerLink) markConnected() {
	_ = l.machine.Event(context.Background(), linkEventEstablish)
}

// applyAnswer applies the remote answer and flushes any candidates that
// arrived ahead of it.
func (l *PeerLink) applyAnswer(answer json.RawMessage) error {
	if err := l.transport.HandleAnswer(answer); err != nil {
		return fmt.Errorf("apply answer from %s: %w", l.remote, err)
	}
	l.remoteReady = true
	return l.flushPending()
}

// addCandidate applies a remote candidate, or buffers it when the remote
// description is not in place yet.
func (l *PeerLink) addCandidate(candidate json.RawMessage) error {
	if !l.remoteReady {
		l.pending = append(l.pending, candidate)
		return nil
	}
	return l.transport.AddICECandidate(candidate)
}

func (l *PeerLink) flushPending() error {
	for _, c := range l.pending {
		if err := l.transport.AddICECandidate(c); err != nil {
			return fmt.Errorf("replay buffered candidate for %s: %w", l.remote, err)
		}
	}
	l.pending = nil
	return nil
}

// close tears the link down and releases its media resources. Safe to call
// repeatedly or on an already closed link.
func (l *PeerLink) close() {
	if l.machine.Is(LinkStateClosed) {
		return
	}
	_ = l.machine.Event(context.Background(), linkEventClose)
	_ = l.transport.Close()
	l.pending = nil
}
