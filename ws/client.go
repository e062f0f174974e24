package ws

import (
	"chat-relay-server/db"
	"chat-relay-server/util"
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is the server-side representative of one authenticated socket. It is
// owned by the hub's registry plus its own read/write goroutines; the hub
// closes both outbound queues on unregistration.
type Client struct {
	conn    *websocket.Conn
	Message chan *RawMessageE2EE
	Events  chan *ClientEvent
	Groups  map[uuid.UUID]bool
	User    *db.GetUserByIdRow `json:"user"`
	cfg     Config
	mutex   sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewClient(conn *websocket.Conn, user *db.GetUserByIdRow, cfg Config) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		conn:    conn,
		Message: make(chan *RawMessageE2EE, cfg.MessageQueueSize),
		Events:  make(chan *ClientEvent, cfg.EventQueueSize),
		Groups:  make(map[uuid.UUID]bool),
		User:    user,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (c *Client) AddGroup(groupID uuid.UUID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.Groups[groupID] = true
}

func (c *Client) RemoveGroup(groupID uuid.UUID) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.Groups, groupID)
}

func (c *Client) InGroup(groupID uuid.UUID) bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.Groups[groupID]
}

// TrySendEvent enqueues a lifecycle event without blocking. A full queue drops
// the event with a log; clients resynchronize over HTTP anyway.
func (c *Client) TrySendEvent(event *ClientEvent) {
	select {
	case c.Events <- event:
	default:
		log.Printf("Client %s (%s): event queue full, dropped %s for group %s",
			c.User.ID.String(), c.User.Username, event.Event, event.GroupID.String())
	}
}

// WriteMessage is the connection's write loop: it drains the message queue,
// the event queue and a ping ticker, applying a per-write deadline. The hub
// closing the message queue means forced unregistration: send a close frame
// and exit.
func (c *Client) WriteMessage() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		log.Printf("WriteMessage goroutine for client %s (%s) exiting.", c.User.ID.String(), c.User.Username)
	}()

	for {
		select {
		case message, ok := <-c.Message:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				log.Printf("Client %s (%s): Error setting write deadline: %v", c.User.ID.String(), c.User.Username, err)
				return
			}
			if !ok {
				log.Printf("Client %s (%s) message channel closed by hub.", c.User.ID.String(), c.User.Username)
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				log.Printf("Error writing JSON (E2EE) for client %s (%s): %v", c.User.ID.String(), c.User.Username, err)
				return
			}
		case event, ok := <-c.Events:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				log.Printf("Client %s (%s): Error setting write deadline for event: %v", c.User.ID.String(), c.User.Username, err)
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				log.Printf("Error writing event JSON for client %s (%s): %v", c.User.ID.String(), c.User.Username, err)
				return
			}
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
				log.Printf("Client %s (%s): Error setting write deadline for ping: %v", c.User.ID.String(), c.User.Username, err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Error sending ping for client %s (%s): %v", c.User.ID.String(), c.User.Username, err)
				return
			}
		case <-c.ctx.Done():
			log.Printf("Context cancelled for client %s (%s), stopping writer.", c.User.ID.String(), c.User.Username)
			return
		}
	}
}

// ReadMessage is the connection's read loop. Malformed or unauthorized frames
// are discarded with a log; only socket errors, deadline expiry or
// cancellation terminate the loop (which triggers unregistration upstream).
func (c *Client) ReadMessage(hub *Hub, isMember util.MembershipChecker) {
	defer func() {
		log.Printf("ReadMessage loop for client %s (%s) exiting.", c.User.ID.String(), c.User.Username)
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		log.Printf("Client %s (%s): Error setting initial read deadline: %v", c.User.ID.String(), c.User.Username, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		select {
		case <-c.ctx.Done():
			log.Printf("Client %s (%s): Context cancelled, stopping reader.", c.User.ID.String(), c.User.Username)
			return
		default:
		}

		var clientMsg ClientSentE2EMessage
		err := c.conn.ReadJSON(&clientMsg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Printf("Client %s (%s): Unexpected WebSocket close error: %v", c.User.ID.String(), c.User.Username, err)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				log.Printf("Client %s (%s): WebSocket read timeout (no pong or message): %v", c.User.ID.String(), c.User.Username, err)
			} else if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Printf("Client %s (%s): Context error during WebSocket read: %v", c.User.ID.String(), c.User.Username, err)
			} else {
				log.Printf("Client %s (%s): WebSocket read error: %v", c.User.ID.String(), c.User.Username, err)
			}
			return
		}

		member, err := isMember(c.ctx, c.User.ID, clientMsg.GroupID)
		if err != nil {
			log.Printf("Client %s (%s): membership check for group %s failed: %v. Discarding.",
				c.User.ID.String(), c.User.Username, clientMsg.GroupID.String(), err)
			continue
		}
		if !member {
			log.Printf("Client %s (%s) attempted to send E2EE message to unauthorized group %s. Discarding.",
				c.User.ID.String(), c.User.Username, clientMsg.GroupID.String())
			continue
		}

		hubMessage := &RawMessageE2EE{
			ID:          clientMsg.ID,
			GroupID:     clientMsg.GroupID,
			MessageType: clientMsg.MessageType,
			MsgNonce:    clientMsg.MsgNonce,
			Ciphertext:  clientMsg.Ciphertext,
			Envelopes:   clientMsg.Envelopes,
			SenderID:    c.User.ID,
		}

		select {
		case hub.Broadcast <- hubMessage:
		case <-c.ctx.Done():
			log.Printf("Client %s (%s): Context cancelled while trying to broadcast message.", c.User.ID.String(), c.User.Username)
			return
		default:
			log.Printf("Hub broadcast channel full for client %s (%s). Message for group %s dropped.",
				c.User.ID.String(), c.User.Username, hubMessage.GroupID.String())
		}
	}
}
