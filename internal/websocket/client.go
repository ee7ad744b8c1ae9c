package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const (
	// outboxSize absorbs event bursts such as a publish fanning out
	// comment and reaction updates. Broadcast drops events for clients
	// that fall further behind instead of blocking the hub.
	outboxSize = 32

	pingInterval = 30 * time.Second
)

// Client is one live feed connection. The browser side is a pure listener:
// incoming frames carry no meaning and are drained only to detect close.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	outbox chan []byte
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		outbox: make(chan []byte, outboxSize),
	}
}

// Run registers the client with the hub and serves the connection until it
// closes, from either side, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.writeLoop(ctx)

	// Drain incoming frames until the peer goes away.
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writeLoop forwards feed events from the outbox to the connection and
// pings on an interval so half-dead connections get reaped.
func (c *Client) writeLoop(ctx context.Context) {
	pinger := time.NewTicker(pingInterval)
	defer pinger.Stop()

	for {
		select {
		case event, ok := <-c.outbox:
			if !ok {
				// Unregister closed the outbox.
				return
			}
			if err := c.conn.Write(ctx, ws.MessageText, event); err != nil {
				return
			}
		case <-pinger.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
