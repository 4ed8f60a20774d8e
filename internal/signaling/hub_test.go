package signaling

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wzin/concord/internal/metrics"
	"github.com/wzin/concord/internal/protocol"
	"github.com/wzin/concord/internal/room"
	"github.com/wzin/concord/internal/sanitize"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(
		room.NewRegistry(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics.New(prometheus.NewRegistry()),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

// connect registers a client without a real websocket; tests feed frames
// straight into the hub and read replies off the send buffer.
func connect(t *testing.T, h *Hub) *Client {
	t.Helper()
	c := NewClient(h, nil)
	h.Register <- c
	return c
}

func sendFrame(t *testing.T, h *Hub, c *Client, typ protocol.Type, payload any) {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, payload)
	require.NoError(t, err)
	h.Inbound <- &inboundFrame{client: c, env: env}
}

func recvFrame(t *testing.T, c *Client) *protocol.Envelope {
	t.Helper()
	select {
	case env, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func recvTyped[T any](t *testing.T, c *Client, want protocol.Type) T {
	t.Helper()
	env := recvFrame(t, c)
	require.Equal(t, want, env.Type)
	var out T
	if env.Payload != nil {
		require.NoError(t, env.Decode(&out))
	}
	return out
}

func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case env, ok := <-c.send:
		if ok {
			t.Fatalf("unexpected frame %s", env.Type)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func join(t *testing.T, h *Hub, c *Client, roomID, username string) protocol.JoinConfirmed {
	t.Helper()
	sendFrame(t, h, c, protocol.TypeJoin, protocol.Join{
		RoomID:   roomID,
		Username: username,
		MediaTag: "media-" + username,
	})
	return recvTyped[protocol.JoinConfirmed](t, c, protocol.TypeJoinConfirmed)
}

func TestJoinFreshRoomMakesCreator(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)

	confirmed := join(t, h, a, "room-1", "alice")
	assert.True(t, confirmed.IsCreator)
	assert.Empty(t, confirmed.Others)

	b := connect(t, h)
	confirmedB := join(t, h, b, "room-1", "bob")
	assert.False(t, confirmedB.IsCreator)
	require.Len(t, confirmedB.Others, 1)
	assert.Equal(t, a.Identity(), confirmedB.Others[0].Identity)
	assert.Equal(t, "alice", confirmedB.Others[0].Username)

	// A is told about B.
	joined := recvTyped[protocol.ParticipantJoined](t, a, protocol.TypeParticipantJoined)
	assert.Equal(t, b.Identity(), joined.Identity)
	assert.Equal(t, "bob", joined.Username)
}

func TestJoinSanitizesUsername(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	join(t, h, a, "room-1", "@@@")

	b := connect(t, h)
	confirmed := join(t, h, b, "room-1", "bob")
	require.Len(t, confirmed.Others, 1)
	assert.Equal(t, sanitize.FallbackUsername, confirmed.Others[0].Username)
}

func TestDuplicateJoinRejected(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	join(t, h, a, "room-1", "alice")

	sendFrame(t, h, a, protocol.TypeJoin, protocol.Join{RoomID: "room-2", Username: "alice"})
	recvTyped[protocol.ProtocolError](t, a, protocol.TypeProtocolError)

	// The session is still joined to its original room.
	b := connect(t, h)
	confirmed := join(t, h, b, "room-1", "bob")
	require.Len(t, confirmed.Others, 1)
	assert.Equal(t, a.Identity(), confirmed.Others[0].Identity)
}

func TestMessagesWhileUnjoinedRejected(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)

	for _, typ := range []protocol.Type{
		protocol.TypeOffer,
		protocol.TypeAnswer,
		protocol.TypeICECandidate,
		protocol.TypeChatSend,
		protocol.TypeSetMuted,
		protocol.TypeKick,
	} {
		sendFrame(t, h, a, typ, protocol.Signal{TargetIdentity: "x"})
		recvTyped[protocol.ProtocolError](t, a, protocol.TypeProtocolError)
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	sendFrame(t, h, a, protocol.Type("frobnicate"), nil)
	recvTyped[protocol.ProtocolError](t, a, protocol.TypeProtocolError)
}

func TestSignalRelayedVerbatim(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	join(t, h, a, "room-1", "alice")
	join(t, h, b, "room-1", "bob")
	recvFrame(t, a) // participantJoined{B}

	payload := json.RawMessage(`{"sdp":"v=0\r\no=- 42 2 IN IP4 0.0.0.0"}`)
	sendFrame(t, h, a, protocol.TypeOffer, protocol.Signal{
		TargetIdentity: b.Identity(),
		Payload:        payload,
	})

	sig := recvTyped[protocol.Signal](t, b, protocol.TypeOffer)
	assert.Equal(t, a.Identity(), sig.FromIdentity)
	assert.JSONEq(t, string(payload), string(sig.Payload))
}

func TestSignalToUnknownTargetSilentlyDropped(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	join(t, h, a, "room-1", "alice")

	sendFrame(t, h, a, protocol.TypeICECandidate, protocol.Signal{
		TargetIdentity: "no-such-identity",
		Payload:        json.RawMessage(`{}`),
	})
	assertNoFrame(t, a)
}

func TestSignalAcrossRoomsDropped(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	join(t, h, a, "room-1", "alice")
	join(t, h, b, "room-2", "bob")

	sendFrame(t, h, a, protocol.TypeOffer, protocol.Signal{
		TargetIdentity: b.Identity(),
		Payload:        json.RawMessage(`{}`),
	})
	assertNoFrame(t, b)
	assertNoFrame(t, a)
}

func TestChatBroadcastIncludesSender(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	join(t, h, a, "room-1", "alice")
	join(t, h, b, "room-1", "bob")
	recvFrame(t, a) // participantJoined{B}

	before := time.Now().UnixMilli()
	sendFrame(t, h, a, protocol.TypeChatSend, protocol.ChatSend{Text: "  hi  "})

	for _, c := range []*Client{a, b} {
		chat := recvTyped[protocol.ChatReceived](t, c, protocol.TypeChatReceived)
		assert.Equal(t, a.Identity(), chat.FromIdentity)
		assert.Equal(t, "alice", chat.Username)
		assert.Equal(t, "hi", chat.Text)
		assert.GreaterOrEqual(t, chat.Timestamp, before)
	}
}

func TestEmptyChatDropped(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	join(t, h, a, "room-1", "alice")

	sendFrame(t, h, a, protocol.TypeChatSend, protocol.ChatSend{Text: "   "})
	assertNoFrame(t, a)
}

func TestSetMutedBroadcastToOthersOnly(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	join(t, h, a, "room-1", "alice")
	join(t, h, b, "room-1", "bob")
	recvFrame(t, a) // participantJoined{B}

	sendFrame(t, h, b, protocol.TypeSetMuted, protocol.SetMuted{Muted: true})

	muted := recvTyped[protocol.ParticipantMuted](t, a, protocol.TypeParticipantMuted)
	assert.Equal(t, b.Identity(), muted.Identity)
	assert.True(t, muted.Muted)
	assertNoFrame(t, b)

	// The flag shows up in later roster snapshots.
	c := connect(t, h)
	confirmed := join(t, h, c, "room-1", "carol")
	for _, entry := range confirmed.Others {
		if entry.Identity == b.Identity() {
			assert.True(t, entry.Muted)
		}
	}
}

func TestKickByNonCreatorRejected(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	join(t, h, a, "room-1", "alice")
	join(t, h, b, "room-1", "bob")
	recvFrame(t, a) // participantJoined{B}

	sendFrame(t, h, b, protocol.TypeKick, protocol.Kick{TargetIdentity: a.Identity()})
	recvTyped[protocol.ProtocolError](t, b, protocol.TypeProtocolError)

	// Membership unchanged: a chat from A still reaches both.
	sendFrame(t, h, a, protocol.TypeChatSend, protocol.ChatSend{Text: "still here"})
	recvTyped[protocol.ChatReceived](t, a, protocol.TypeChatReceived)
	recvTyped[protocol.ChatReceived](t, b, protocol.TypeChatReceived)
}

func TestSelfKickRejected(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	join(t, h, a, "room-1", "alice")

	sendFrame(t, h, a, protocol.TypeKick, protocol.Kick{TargetIdentity: a.Identity()})
	recvTyped[protocol.ProtocolError](t, a, protocol.TypeProtocolError)
}

func TestKickUnknownTargetSilentlyDropped(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	join(t, h, a, "room-1", "alice")

	sendFrame(t, h, a, protocol.TypeKick, protocol.Kick{TargetIdentity: "ghost"})
	assertNoFrame(t, a)
}

func TestKickRemovesTargetAndNotifies(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	c := connect(t, h)
	join(t, h, a, "room-1", "alice")
	join(t, h, b, "room-1", "bob")
	recvFrame(t, a) // participantJoined{B}
	join(t, h, c, "room-1", "carol")
	recvFrame(t, a) // participantJoined{C}
	recvFrame(t, b) // participantJoined{C}

	sendFrame(t, h, a, protocol.TypeKick, protocol.Kick{TargetIdentity: b.Identity()})

	env := recvFrame(t, b)
	assert.Equal(t, protocol.TypeYouWereKicked, env.Type)

	kicked := recvTyped[protocol.ParticipantKicked](t, c, protocol.TypeParticipantKicked)
	assert.Equal(t, b.Identity(), kicked.Identity)

	// The kicker already knows; it gets no duplicate notification.
	assertNoFrame(t, a)
}

func TestTerminateRemovesParticipantAndEmptiesRoom(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)
	join(t, h, a, "room-1", "alice")
	join(t, h, b, "room-1", "bob")
	recvFrame(t, a) // participantJoined{B}

	h.Unregister <- b

	left := recvTyped[protocol.ParticipantLeft](t, a, protocol.TypeParticipantLeft)
	assert.Equal(t, b.Identity(), left.Identity)

	// B's send channel is closed after unregistration.
	_, ok := <-b.send
	assert.False(t, ok)

	h.Unregister <- a
	_, ok = <-a.send
	assert.False(t, ok)

	// Room is gone: a new joiner of the same id becomes creator.
	c := connect(t, h)
	confirmed := join(t, h, c, "room-1", "carol")
	assert.True(t, confirmed.IsCreator)
	assert.Empty(t, confirmed.Others)
}

// Full walkthrough: creator and guest join, chat, then the guest is kicked.
func TestRoomLifecycleScenario(t *testing.T) {
	h := newTestHub(t)
	a := connect(t, h)
	b := connect(t, h)

	confirmedA := join(t, h, a, "room-R", "A")
	assert.True(t, confirmedA.IsCreator)
	assert.Empty(t, confirmedA.Others)

	confirmedB := join(t, h, b, "room-R", "B")
	assert.False(t, confirmedB.IsCreator)
	require.Len(t, confirmedB.Others, 1)
	assert.Equal(t, a.Identity(), confirmedB.Others[0].Identity)

	joined := recvTyped[protocol.ParticipantJoined](t, a, protocol.TypeParticipantJoined)
	assert.Equal(t, b.Identity(), joined.Identity)

	sendFrame(t, h, a, protocol.TypeChatSend, protocol.ChatSend{Text: "hi"})
	for _, c := range []*Client{a, b} {
		chat := recvTyped[protocol.ChatReceived](t, c, protocol.TypeChatReceived)
		assert.Equal(t, a.Identity(), chat.FromIdentity)
		assert.Equal(t, "hi", chat.Text)
	}

	sendFrame(t, h, a, protocol.TypeKick, protocol.Kick{TargetIdentity: b.Identity()})
	env := recvFrame(t, b)
	assert.Equal(t, protocol.TypeYouWereKicked, env.Type)

	// Kicked sessions no-op on further traffic.
	sendFrame(t, h, b, protocol.TypeChatSend, protocol.ChatSend{Text: "ghost"})
	assertNoFrame(t, b)
	assertNoFrame(t, a)

	// The room survives with A alone; a new joiner is not the creator.
	c := connect(t, h)
	confirmedC := join(t, h, c, "room-R", "C")
	assert.False(t, confirmedC.IsCreator)
	require.Len(t, confirmedC.Others, 1)
	assert.Equal(t, a.Identity(), confirmedC.Others[0].Identity)
}
