package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"sync"
	"time"

	"relay/pkg/log"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

// Client connects to a gateway as one user and receives its notifications.
type Client struct {
	gatewayURL string
	userID     string
	pause      time.Duration
	conn       *websocket.Conn
	mu         sync.Mutex
	onMessage  func(Frame)
	onConnect  func()
	logger     zerolog.Logger
}

// NewClient creates a client for the gateway websocket endpoint, e.g.
// "ws://localhost:4000/ws".
func NewClient(gatewayURL, userID string) *Client {
	return &Client{
		gatewayURL: gatewayURL,
		userID:     userID,
		pause:      time.Second,
		logger:     log.WithUser(log.WithComponent("client"), userID),
	}
}

// OnMessage registers the callback for frames received from the gateway.
func (c *Client) OnMessage(fn func(Frame)) {
	c.onMessage = fn
}

// OnConnect registers a callback run after every successful dial.
func (c *Client) OnConnect(fn func()) {
	c.onConnect = fn
}

// SetReconnectPause sets the wait between connection attempts.
func (c *Client) SetReconnectPause(d time.Duration) {
	c.pause = d
}

// Connect keeps a session open, redialing after failures, until ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.closeConn)
	defer stop()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := c.dial(ctx); err != nil {
			c.logger.Warn().Err(err).Dur("retry_in", c.pause).Msg("gateway dial failed")
		} else {
			c.logger.Info().Str("gateway", c.gatewayURL).Msg("connected")
			if c.onConnect != nil {
				c.onConnect()
			}
			c.readLoop()
			c.closeConn()
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn().Msg("disconnected, reconnecting")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.pause):
		}
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.gatewayURL)
	if err != nil {
		return "", err
	}
	if c.userID != "" {
		q := u.Query()
		q.Set("user_id", c.userID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) dial(ctx context.Context) error {
	endpoint, err := c.endpoint()
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		conn.Close()
		return err
	}
	c.conn = conn
	return nil
}

func (c *Client) readLoop() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.logger.Warn().Err(err).Msg("undecodable frame")
			continue
		}
		if c.onMessage != nil {
			c.onMessage(f)
		}
	}
}

// Ping asks the gateway for a pong frame.
func (c *Client) Ping() error {
	raw, err := json.Marshal(Frame{Event: EventPing})
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	return c.conn.WriteMessage(websocket.TextMessage, raw)
}

func (c *Client) closeConn() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}
