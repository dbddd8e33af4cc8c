package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

type ClientOptions struct {
	SendBufferSize int
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		SendBufferSize: 256,
		PingInterval:   pingPeriod,
		PongTimeout:    pongWait,
		MaxMessageSize: maxMessageSize,
	}
}

func (o ClientOptions) withDefaults() ClientOptions {
	defaults := DefaultClientOptions()
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = defaults.SendBufferSize
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = defaults.PongTimeout
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongTimeout {
		o.PingInterval = (o.PongTimeout * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaults.MaxMessageSize
	}
	return o
}

// Client is one live connection. Outbound frames go through a bounded send
// buffer drained by the write pump; a client whose buffer is full is treated
// as a slow consumer and closed.
type Client struct {
	conn      *websocket.Conn
	UserID    primitive.ObjectID
	Moderator bool

	opts      ClientOptions
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mutex   sync.Mutex
	group   string
	holding bool
	held    [][]byte
}

func NewClient(conn *websocket.Conn, userID primitive.ObjectID, moderator bool, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		conn:      conn,
		UserID:    userID,
		Moderator: moderator,
		opts:      opts,
		send:      make(chan []byte, opts.SendBufferSize),
		done:      make(chan struct{}),
	}
}

func (c *Client) Group() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.group
}

func (c *Client) setGroup(group string) {
	c.mutex.Lock()
	c.group = group
	c.mutex.Unlock()
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Hold buffers group events instead of sending them until Resume is called.
// It lets a caller write history frames ahead of live traffic.
func (c *Client) Hold() {
	c.mutex.Lock()
	c.holding = true
	c.mutex.Unlock()
}

// Resume flushes the events buffered since Hold, skipping those for which
// keep returns false, and goes back to direct delivery. It returns false if
// the client could not take the backlog.
func (c *Client) Resume(keep func([]byte) bool) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	held := c.held
	c.held = nil
	c.holding = false

	for _, data := range held {
		if keep != nil && !keep(data) {
			continue
		}
		if !c.trySend(data) {
			return false
		}
	}
	return true
}

// Enqueue queues a frame for this client only, waiting for buffer space.
// It returns false once the client is closed.
func (c *Client) Enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	case <-c.done:
		return false
	}
}

// deliver hands a group event to the client without blocking.
func (c *Client) deliver(data []byte) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.holding {
		if len(c.held) >= cap(c.send) {
			return false
		}
		c.held = append(c.held, data)
		return true
	}
	return c.trySend(data)
}

// trySend reports false for a closed client so the hub prunes it.
func (c *Client) trySend(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Start runs the read and write pumps. onMessage is called sequentially for
// every inbound text frame; onClose runs once after the read pump exits.
func (c *Client) Start(onMessage func([]byte), onClose func()) {
	go c.writePump()
	go c.readPump(onMessage, onClose)
}

func (c *Client) readPump(onMessage func([]byte), onClose func()) {
	defer func() {
		c.Close()
		c.conn.Close()
		if onClose != nil {
			onClose()
		}
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if onMessage != nil {
			onMessage(message)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
