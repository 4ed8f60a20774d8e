// Package signaling implements the relay side of the session protocol: a hub
// goroutine owns all room state and routes typed messages between websocket
// clients.
package signaling

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/wzin/concord/internal/metrics"
	"github.com/wzin/concord/internal/protocol"
	"github.com/wzin/concord/internal/room"
	"github.com/wzin/concord/internal/sanitize"
)

// inboundFrame pairs a decoded envelope with the client that sent it.
type inboundFrame struct {
	client *Client
	env    *protocol.Envelope
}

// Hub is the single writer for all registry and room state. Register,
// unregister and inbound frames are serialized through its Run loop, so every
// join/leave/kick sequence a client observes is consistent with one total
// order per room.
type Hub struct {
	Register   chan *Client
	Unregister chan *Client
	Inbound    chan *inboundFrame

	registry *room.Registry
	clients  map[string]*Client

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewHub creates a hub around an injected registry.
func NewHub(registry *room.Registry, logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Inbound:    make(chan *inboundFrame, 64),
		registry:   registry,
		clients:    make(map[string]*Client),
		logger:     logger,
		metrics:    m,
	}
}

// Run processes hub events until ctx is cancelled. All state mutation happens
// on this goroutine; handlers never block.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.Register:
			h.clients[c.identity] = c
			h.metrics.ActiveSessions.Set(float64(len(h.clients)))
			h.logger.Debug("session registered", "identity", c.identity)

		case c := <-h.Unregister:
			h.removeClient(c)

		case frame := <-h.Inbound:
			h.dispatch(frame.client, frame.env)
		}
	}
}

// dispatch routes one inbound frame. The message catalogue is closed: every
// known type has a case and anything else is a protocol error. A panic in a
// handler is contained to this frame; the session stays alive.
func (h *Hub) dispatch(c *Client, env *protocol.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("handler panic", "identity", c.identity, "type", string(env.Type), "panic", r)
			h.sendEvent(c, protocol.TypeProtocolError, protocol.ProtocolError{Message: "internal error"})
		}
	}()

	// Terminated sessions no-op on everything.
	if c.terminated() {
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		h.handleJoin(c, env)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		h.relaySignal(c, env)
	case protocol.TypeChatSend:
		h.handleChat(c, env)
	case protocol.TypeSetMuted:
		h.handleSetMuted(c, env)
	case protocol.TypeKick:
		h.handleKick(c, env)
	default:
		h.rejectProtocol(c, "unknown message type")
	}
}

func (h *Hub) handleJoin(c *Client, env *protocol.Envelope) {
	if c.joined() {
		// Re-joining an already joined session is a protocol violation,
		// not a silent re-join.
		h.rejectProtocol(c, "already joined a room")
		return
	}

	var req protocol.Join
	if err := env.Decode(&req); err != nil || req.RoomID == "" {
		h.rejectProtocol(c, "malformed join request")
		return
	}

	name := sanitize.Username(req.Username)
	rm := h.registry.GetOrCreate(req.RoomID, c.identity)

	others := make([]protocol.RosterEntry, 0, rm.Len())
	for _, p := range rm.Participants() {
		if p.Identity == c.identity {
			continue
		}
		others = append(others, protocol.RosterEntry{
			Identity: p.Identity,
			Username: p.Name,
			MediaTag: p.MediaTag,
			Muted:    p.Muted,
		})
	}

	rm.AddParticipant(c.identity, name, req.MediaTag)
	c.roomID = req.RoomID
	c.username = name
	c.markJoined()

	h.sendEvent(c, protocol.TypeJoinConfirmed, protocol.JoinConfirmed{
		Others:    others,
		IsCreator: rm.IsCreator(c.identity),
	})
	h.broadcast(rm, protocol.TypeParticipantJoined, protocol.ParticipantJoined{
		Identity: c.identity,
		Username: name,
		MediaTag: req.MediaTag,
	}, c.identity)

	h.metrics.JoinsTotal.Inc()
	h.metrics.ActiveRooms.Set(float64(h.registry.Len()))
	h.logger.Info("participant joined", "room", rm.ID, "identity", c.identity, "username", name)
}

// relaySignal forwards an offer, answer or ICE candidate verbatim to its
// addressed peer, tagged with the sender identity. The payload is opaque at
// this layer. A target that is not a live member of the sender's room means
// the frame is silently dropped.
func (h *Hub) relaySignal(c *Client, env *protocol.Envelope) {
	if !c.joined() {
		h.rejectProtocol(c, "not in a room")
		return
	}

	var sig protocol.Signal
	if err := env.Decode(&sig); err != nil || sig.TargetIdentity == "" {
		h.rejectProtocol(c, "malformed signal")
		return
	}

	target, ok := h.clients[sig.TargetIdentity]
	if !ok || !target.joined() || target.roomID != c.roomID {
		h.metrics.SignalsDropped.Inc()
		return
	}

	h.sendEvent(target, env.Type, protocol.Signal{
		FromIdentity: c.identity,
		Payload:      sig.Payload,
	})
	h.metrics.SignalsRelayed.WithLabelValues(string(env.Type)).Inc()
}

func (h *Hub) handleChat(c *Client, env *protocol.Envelope) {
	if !c.joined() {
		h.rejectProtocol(c, "not in a room")
		return
	}

	var req protocol.ChatSend
	if err := env.Decode(&req); err != nil {
		h.rejectProtocol(c, "malformed chat message")
		return
	}

	text := sanitize.Message(req.Text)
	if text == "" {
		return
	}

	rm, ok := h.registry.Get(c.roomID)
	if !ok {
		return
	}

	// Chat goes to everyone, sender included, with a server timestamp.
	h.broadcast(rm, protocol.TypeChatReceived, protocol.ChatReceived{
		FromIdentity: c.identity,
		Username:     c.username,
		Text:         text,
		Timestamp:    time.Now().UnixMilli(),
	})
	h.metrics.ChatMessages.Inc()
}

func (h *Hub) handleSetMuted(c *Client, env *protocol.Envelope) {
	if !c.joined() {
		h.rejectProtocol(c, "not in a room")
		return
	}

	var req protocol.SetMuted
	if err := env.Decode(&req); err != nil {
		h.rejectProtocol(c, "malformed mute update")
		return
	}

	rm, ok := h.registry.Get(c.roomID)
	if !ok {
		return
	}
	if p := rm.Get(c.identity); p != nil {
		p.Muted = req.Muted
	}

	h.broadcast(rm, protocol.TypeParticipantMuted, protocol.ParticipantMuted{
		Identity: c.identity,
		Muted:    req.Muted,
	}, c.identity)
}

func (h *Hub) handleKick(c *Client, env *protocol.Envelope) {
	if !c.joined() {
		h.rejectProtocol(c, "not in a room")
		return
	}

	var req protocol.Kick
	if err := env.Decode(&req); err != nil {
		h.rejectProtocol(c, "malformed kick request")
		return
	}

	rm, ok := h.registry.Get(c.roomID)
	if !ok {
		return
	}
	if !rm.IsCreator(c.identity) {
		h.rejectProtocol(c, "only the room creator can kick")
		return
	}
	if req.TargetIdentity == c.identity {
		h.rejectProtocol(c, "cannot kick yourself")
		return
	}
	if rm.Get(req.TargetIdentity) == nil {
		// Target already gone; nothing the caller can act on.
		return
	}

	rm.RemoveParticipant(req.TargetIdentity)

	if target, live := h.clients[req.TargetIdentity]; live {
		h.sendEvent(target, protocol.TypeYouWereKicked, nil)
		// Detach the connection from the room; the session is terminal
		// and a kicked client rejoins from scratch on a new connection.
		target.roomID = ""
		target.markTerminated()
	}

	h.broadcast(rm, protocol.TypeParticipantKicked, protocol.ParticipantKicked{
		Identity: req.TargetIdentity,
	}, c.identity)

	h.metrics.KicksTotal.Inc()
	h.metrics.DeparturesTotal.Inc()
	h.logger.Info("participant kicked", "room", rm.ID, "by", c.identity, "target", req.TargetIdentity)
}

// removeClient handles the implicit disconnect: leave the room, notify the
// remaining members and drop the room when it empties.
func (h *Hub) removeClient(c *Client) {
	if _, known := h.clients[c.identity]; !known {
		return
	}
	delete(h.clients, c.identity)

	if c.joined() {
		if rm, ok := h.registry.Get(c.roomID); ok {
			rm.RemoveParticipant(c.identity)
			h.broadcast(rm, protocol.TypeParticipantLeft, protocol.ParticipantLeft{
				Identity: c.identity,
			})
			if rm.IsEmpty() {
				h.registry.Remove(rm.ID)
				h.logger.Info("room removed", "room", rm.ID)
			}
			h.metrics.DeparturesTotal.Inc()
		}
	}
	c.markTerminated()
	close(c.send)

	h.metrics.ActiveSessions.Set(float64(len(h.clients)))
	h.metrics.ActiveRooms.Set(float64(h.registry.Len()))
	h.logger.Debug("session unregistered", "identity", c.identity)
}

// broadcast sends an event to every member of rm except the listed
// identities. Members without a live connection are skipped.
func (h *Hub) broadcast(rm *room.Room, t protocol.Type, payload any, exclude ...string) {
	env, err := protocol.NewEnvelope(t, payload)
	if err != nil {
		h.logger.Error("encode broadcast", "type", string(t), "err", err)
		return
	}

	for _, p := range rm.Participants() {
		if slices.Contains(exclude, p.Identity) {
			continue
		}
		if member, ok := h.clients[p.Identity]; ok {
			h.send(member, env)
		}
	}
}

func (h *Hub) sendEvent(c *Client, t protocol.Type, payload any) {
	env, err := protocol.NewEnvelope(t, payload)
	if err != nil {
		h.logger.Error("encode event", "type", string(t), "err", err)
		return
	}
	h.send(c, env)
}

// send enqueues an envelope without ever blocking the hub loop. A full buffer
// means the client is too slow to keep up and the frame is dropped.
func (h *Hub) send(c *Client, env *protocol.Envelope) {
	select {
	case c.send <- env:
	default:
		h.logger.Warn("send buffer full, dropping frame", "identity", c.identity, "type", string(env.Type))
	}
}

func (h *Hub) rejectProtocol(c *Client, msg string) {
	h.metrics.ProtocolErrors.Inc()
	h.sendEvent(c, protocol.TypeProtocolError, protocol.ProtocolError{Message: msg})
}
