package hub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"relay/pkg/metrics"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
)

var (
	ErrConnClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

const flushTimeout = time.Second

// clientConn is one websocket session. Send only enqueues; writePump owns
// all writes to the socket. A frame accepted by Send is either written or
// counted as dropped.
type clientConn struct {
	conn   *websocket.Conn
	userID string
	out    chan []byte
	done   chan struct{}
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
}

func newClientConn(c *websocket.Conn, userID string, buffer int, logger zerolog.Logger) *clientConn {
	return &clientConn{
		conn:   c,
		userID: userID,
		out:    make(chan []byte, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (cc *clientConn) Send(event string, data any) error {
	raw, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return err
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.closed {
		return ErrConnClosed
	}
	select {
	case cc.out <- raw:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// shutdown stops Send from accepting frames. Frames already queued stay
// for writePump.
func (cc *clientConn) shutdown() {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if !cc.closed {
		cc.closed = true
		close(cc.done)
	}
}

// writePump drains the outbound queue until shutdown or a write error. On
// shutdown it flushes what is still queued.
func (cc *clientConn) writePump() {
	for {
		select {
		case raw := <-cc.out:
			if err := cc.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				cc.logger.Debug().Err(err).Msg("write failed")
				cc.shutdown()
				cc.conn.Close()
				cc.dropQueued()
				return
			}
		case <-cc.done:
			cc.flush()
			return
		}
	}
}

func (cc *clientConn) flush() {
	cc.conn.SetWriteDeadline(time.Now().Add(flushTimeout))
	for {
		select {
		case raw := <-cc.out:
			if err := cc.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				cc.logger.Debug().Err(err).Msg("flush failed")
				metrics.MessagesDropped.WithLabelValues(metrics.ReasonSendFailed).Inc()
				cc.dropQueued()
				return
			}
		default:
			return
		}
	}
}

// dropQueued discards frames that can no longer be written. Only valid
// after shutdown, when the queue can no longer grow.
func (cc *clientConn) dropQueued() {
	n := len(cc.out)
	for i := 0; i < n; i++ {
		<-cc.out
	}
	if n > 0 {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonSendFailed).Add(float64(n))
		cc.logger.Debug().Int("frames", n).Msg("queued frames dropped")
	}
}
