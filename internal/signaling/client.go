package signaling

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/looplab/fsm"

	"github.com/wzin/concord/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. 64 KB is enough for SDP
	// payloads with room to spare.
	maxMessageSize = 64 * 1024

	// Outbound buffer per connection. The hub never blocks on a slow
	// client; frames beyond this are dropped.
	sendBufferSize = 256
)

// Session lifecycle states. A session joins at most one room and, once
// terminated (disconnect or kick), every further operation is a no-op.
const (
	stateUnjoined   = "unjoined"
	stateJoined     = "joined"
	stateTerminated = "terminated"

	eventJoin      = "join"
	eventTerminate = "terminate"
)

// Client wraps a single websocket connection. Its identity doubles as the
// relay address for handshake messages.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	identity string
	send     chan *protocol.Envelope

	// Session context, owned by the hub goroutine.
	session  *fsm.FSM
	roomID   string
	username string
}

// NewClient creates a client for an upgraded websocket connection and assigns
// it a fresh connection identity.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: uuid.NewString(),
		send:     make(chan *protocol.Envelope, sendBufferSize),
		session:  newSessionFSM(),
	}
}

func newSessionFSM() *fsm.FSM {
	return fsm.NewFSM(
		stateUnjoined,
		fsm.Events{
			{Name: eventJoin, Src: []string{stateUnjoined}, Dst: stateJoined},
			{Name: eventTerminate, Src: []string{stateUnjoined, stateJoined}, Dst: stateTerminated},
		},
		fsm.Callbacks{},
	)
}

// Identity returns the connection identity.
func (c *Client) Identity() string {
	return c.identity
}

func (c *Client) joined() bool {
	return c.session.Is(stateJoined)
}

func (c *Client) terminated() bool {
	return c.session.Is(stateTerminated)
}

func (c *Client) markJoined() {
	_ = c.session.Event(context.Background(), eventJoin)
}

func (c *Client) markTerminated() {
	if c.session.Can(eventTerminate) {
		_ = c.session.Event(context.Background(), eventTerminate)
	}
}

// ReadPump pumps frames from the websocket connection to the hub. It runs in
// a per-connection goroutine; all reads happen here.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env protocol.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Debug("websocket read failed", "identity", c.identity, "err", err)
			}
			return
		}
		c.hub.Inbound <- &inboundFrame{client: c, env: &env}
	}
}

// WritePump pumps frames from the send channel to the websocket connection
// and keeps the connection alive with periodic pings. It runs in a
// per-connection goroutine; all writes happen here.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
