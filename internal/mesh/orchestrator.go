package mesh

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wzin/concord/internal/protocol"
)

// Sender ships envelopes to the relay. The signaling client implements it;
// tests plug in a capture.
type Sender interface {
	Send(env *protocol.Envelope) error
}

// LinkStateFunc observes link lifecycle transitions, e.g. to attach a voice
// activity detector once media flows. It is invoked with the orchestrator
// lock held and must not call back into the Orchestrator.
type LinkStateFunc func(remote string, state string)

// Orchestrator owns all peer links for one local session: at most one link
// per remote identity, duplicate requests are no-ops, and a failure on one
// link never touches the others.
type Orchestrator struct {
	mu      sync.Mutex
	links   map[string]*PeerLink
	sender  Sender
	factory TransportFactory
	logger  *slog.Logger

	onLinkState LinkStateFunc
	onSpeaking  func(remote string, speaking bool)
	closed      bool
}

// New creates an orchestrator. onLinkState may be nil.
func New(sender Sender, factory TransportFactory, logger *slog.Logger, onLinkState LinkStateFunc) *Orchestrator {
	return &Orchestrator{
		links:       make(map[string]*PeerLink),
		sender:      sender,
		factory:     factory,
		logger:      logger,
		onLinkState: onLinkState,
	}
}

// OnPeerSpeaking registers an observer for voice-activity edges measured on
// remote streams. Must be set before links are created.
func (o *Orchestrator) OnPeerSpeaking(fn func(remote string, speaking bool)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSpeaking = fn
}

// Dispatch routes one relay-to-client envelope into the mesh. Envelope types
// the mesh does not own are ignored.
func (o *Orchestrator) Dispatch(env *protocol.Envelope) {
	switch env.Type {
	case protocol.TypeJoinConfirmed:
		var p protocol.JoinConfirmed
		if err := env.Decode(&p); err != nil {
			o.logger.Error("decode joinConfirmed", "err", err)
			return
		}
		o.HandleRoster(p.Others)

	case protocol.TypeOffer:
		var sig protocol.Signal
		if err := env.Decode(&sig); err != nil {
			o.logger.Error("decode offer", "err", err)
			return
		}
		o.HandleOffer(sig.FromIdentity, sig.Payload)

	case protocol.TypeAnswer:
		var sig protocol.Signal
		if err := env.Decode(&sig); err != nil {
			o.logger.Error("decode answer", "err", err)
			return
		}
		o.HandleAnswer(sig.FromIdentity, sig.Payload)

	case protocol.TypeICECandidate:
		var sig protocol.Signal
		if err := env.Decode(&sig); err != nil {
			o.logger.Error("decode candidate", "err", err)
			return
		}
		o.HandleICECandidate(sig.FromIdentity, sig.Payload)

	case protocol.TypeParticipantLeft:
		var p protocol.ParticipantLeft
		if err := env.Decode(&p); err == nil {
			o.Remove(p.Identity)
		}

	case protocol.TypeParticipantKicked:
		var p protocol.ParticipantKicked
		if err := env.Decode(&p); err == nil {
			o.Remove(p.Identity)
		}
	}
}

// HandleRoster dials every participant already in the room. The local session
// is the newcomer, so it initiates all of these links; remote parties joining
// later will initiate toward us instead.
func (o *Orchestrator) HandleRoster(others []protocol.RosterEntry) {
	for _, entry := range others {
		if err := o.dial(entry.Identity); err != nil {
			o.logger.Error("dial peer failed", "remote", entry.Identity, "err", err)
		}
	}
}

// dial opens an initiator link toward remote. Opening a second link to the
// same identity is a no-op.
func (o *Orchestrator) dial(remote string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}
	if _, exists := o.links[remote]; exists {
		return nil
	}

	transport, err := o.factory(RoleInitiator, o.eventsFor(remote))
	if err != nil {
		return fmt.Errorf("create transport for %s: %w", remote, err)
	}

	link := newPeerLink(remote, RoleInitiator, transport)
	offer, err := transport.CreateOffer()
	if err != nil {
		link.close()
		return fmt.Errorf("create offer for %s: %w", remote, err)
	}

	o.links[remote] = link
	link.markNegotiating()
	o.notify(remote, link.State())

	return o.sendSignal(protocol.TypeOffer, remote, offer)
}

// HandleOffer answers an incoming offer by creating a responder link. An
// offer for an identity that already has a link is a protocol anomaly: it is
// logged and ignored rather than corrupting the existing link.
func (o *Orchestrator) HandleOffer(from string, offer json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	if _, exists := o.links[from]; exists {
		o.logger.Warn("duplicate offer ignored", "remote", from)
		return
	}

	transport, err := o.factory(RoleResponder, o.eventsFor(from))
	if err != nil {
		o.logger.Error("create transport failed", "remote", from, "err", err)
		return
	}

	link := newPeerLink(from, RoleResponder, transport)
	answer, err := transport.HandleOffer(offer)
	if err != nil {
		o.logger.Error("apply offer failed", "remote", from, "err", err)
		link.close()
		return
	}
	link.remoteReady = true

	o.links[from] = link
	link.markNegotiating()
	o.notify(from, link.State())

	if err := o.sendSignal(protocol.TypeAnswer, from, answer); err != nil {
		o.logger.Error("send answer failed", "remote", from, "err", err)
	}
}

// HandleAnswer applies an answer to the pending offer for that identity. An
// answer with no link is stale and dropped.
func (o *Orchestrator) HandleAnswer(from string, answer json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, ok := o.links[from]
	if !ok || link.State() == LinkStateClosed {
		return
	}
	if err := link.applyAnswer(answer); err != nil {
		o.logger.Error("answer failed, tearing link down", "remote", from, "err", err)
		o.removeLocked(from)
	}
}

// HandleICECandidate routes a candidate to its link, buffering it when the
// remote description has not been applied yet. A candidate with no link is
// stale and dropped.
func (o *Orchestrator) HandleICECandidate(from string, candidate json.RawMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, ok := o.links[from]
	if !ok || link.State() == LinkStateClosed {
		return
	}
	if err := link.addCandidate(candidate); err != nil {
		o.logger.Error("candidate failed, tearing link down", "remote", from, "err", err)
		o.removeLocked(from)
	}
}

// Resignal re-offers on an existing link without tearing it down, e.g. after
// local media changed.
func (o *Orchestrator) Resignal(remote string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	link, ok := o.links[remote]
	if !ok || link.State() == LinkStateClosed {
		return nil
	}

	offer, err := link.transport.CreateOffer()
	if err != nil {
		return fmt.Errorf("renegotiate with %s: %w", remote, err)
	}
	link.remoteReady = false
	return o.sendSignal(protocol.TypeOffer, remote, offer)
}

// BroadcastControl ships advisory state (mute, speaking) to every connected
// peer. Delivery is best effort.
func (o *Orchestrator) BroadcastControl(msg ControlMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, link := range o.links {
		if link.State() != LinkStateConnected {
			continue
		}
		if err := link.transport.SendControl(msg); err != nil {
			o.logger.Debug("control send failed", "remote", link.remote, "err", err)
		}
	}
}

// Remove tears down the link for remote, releasing its media resources.
// Idempotent; removing an unknown identity is a no-op.
func (o *Orchestrator) Remove(remote string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.removeLocked(remote)
}

func (o *Orchestrator) removeLocked(remote string) {
	link, ok := o.links[remote]
	if !ok {
		return
	}
	link.close()
	delete(o.links, remote)
	o.notify(remote, LinkStateClosed)
	o.logger.Debug("peer link closed", "remote", remote)
}

// Close tears down every link. Safe to call more than once.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	for remote := range o.links {
		o.removeLocked(remote)
	}
}

// LinkState reports the handshake state for remote, or "" when no link
// exists.
func (o *Orchestrator) LinkState(remote string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if link, ok := o.links[remote]; ok {
		return link.State()
	}
	return ""
}

// LinkCount returns the number of live links.
func (o *Orchestrator) LinkCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}

// eventsFor builds the transport callbacks for one remote identity. They
// arrive on engine goroutines and re-enter the orchestrator through its
// locked methods.
func (o *Orchestrator) eventsFor(remote string) TransportEvents {
	return TransportEvents{
		OnICECandidate: func(payload json.RawMessage) {
			if err := o.sendSignal(protocol.TypeICECandidate, remote, payload); err != nil {
				o.logger.Debug("candidate send failed", "remote", remote, "err", err)
			}
		},
		OnStateChange: func(state TransportState) {
			switch state {
			case TransportConnected:
				o.mu.Lock()
				if link, ok := o.links[remote]; ok {
					link.markConnected()
					o.notify(remote, link.State())
				}
				o.mu.Unlock()
			case TransportFailed, TransportClosed:
				// Fault isolation: only this link goes down.
				o.Remove(remote)
			}
		},
		OnControl: func(msg ControlMessage) {
			o.logger.Debug("peer control state", "remote", remote, "muted", msg.Muted, "speaking", msg.Speaking)
		},
		OnSpeaking: func(speaking bool) {
			o.mu.Lock()
			fn := o.onSpeaking
			o.mu.Unlock()
			if fn != nil {
				fn(remote, speaking)
			}
		},
	}
}

func (o *Orchestrator) sendSignal(t protocol.Type, target string, payload json.RawMessage) error {
	env, err := protocol.NewEnvelope(t, protocol.Signal{
		TargetIdentity: target,
		Payload:        payload,
	})
	if err != nil {
		return err
	}
	return o.sender.Send(env)
}

func (o *Orchestrator) notify(remote, state string) {
	if o.onLinkState != nil {
		o.onLinkState(remote, state)
	}
}
