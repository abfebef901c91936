package server

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-supportchat/internal/types"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	routeTimeout   = 5 * time.Second
)

var newConnectionId = shortid.Generate

// Client is one live websocket connection of an authenticated party.
type Client struct {
	id          string
	conn        *websocket.Conn
	relay       *Relay
	log         *log.Logger
	role        types.Role
	customerId  int
	handle      Handle
	connectedAt time.Time
	send        chan *ServerMessage
	stop        chan struct{}
	stopOnce    sync.Once

	// backlog is written before any live event. Live messages of
	// replayConversation with ids up to replayedThrough are already in it.
	backlog            []*ServerMessage
	replayConversation int
	replayedThrough    int64
}

func NewClient(identity types.Identity, conn *websocket.Conn, relay *Relay, l *log.Logger) *Client {
	id, err := newConnectionId()
	if err != nil {
		id = "unknown"
	}

	c := &Client{
		id:    id,
		conn:  conn,
		relay: relay,
		log:   l,
		role:  identity.Role,
		send:  make(chan *ServerMessage, 256),
		stop:  make(chan struct{}),
	}
	if identity.Role == types.RoleCustomer {
		c.customerId = identity.UserId
	}

	return c
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Printf("connection %s: write exiting", c.id)
	}()

	for _, msg := range c.backlog {
		if !c.writeEvent(msg) {
			return
		}
	}
	c.backlog = nil

	for {
		select {
		case msg := <-c.send:
			if c.alreadyReplayed(msg) {
				continue
			}
			if !c.writeEvent(msg) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Printf("connection %s: read exiting", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		c.handleFrame(raw)
	}
}

// handleFrame routes one inbound frame and answers origin: the message
// itself on success, an error event otherwise.
func (c *Client) handleFrame(raw []byte) {
	ev, err := parseClientMessage(c, raw)
	if err != nil {
		c.reply(ErrInvalidMessage(err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), routeTimeout)
	defer cancel()

	reply, err := c.relay.router.Route(ctx, c, ev)
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			c.reply(ErrInvalidMessage(verr.Error()))
			return
		}
		c.reply(ErrNotPersisted())
		return
	}

	c.reply(reply)
}

// reply answers the client itself. A client that cannot take its own reply
// is evicted like any other slow recipient.
func (c *Client) reply(msg *ServerMessage) {
	c.relay.broadcaster.Deliver([]*Client{c}, msg)
}

func (c *Client) alreadyReplayed(msg *ServerMessage) bool {
	if msg.Type != EventNewMessage || msg.Message == nil {
		return false
	}

	return msg.Message.UserId == c.replayConversation && msg.Message.Id <= c.replayedThrough
}

// queueMessage enqueues msg without blocking. It reports false when the
// buffer is full or the client has been stopped.
func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case <-c.stop:
		return false
	default:
	}

	select {
	case c.send <- msg:
	default:
		c.log.Printf("connection %s: send buffer full", c.id)
		return false
	}

	return true
}

func (c *Client) writeEvent(msg *ServerMessage) bool {
	bytes, err := serializeMessage(msg)
	if err != nil {
		c.log.Println("failed to serialize message:", err)
		return true
	}

	return c.sendMessage(websocket.TextMessage, bytes)
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.relay.Disconnect(c)
	c.stopClient()
}
