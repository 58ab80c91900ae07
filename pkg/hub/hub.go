package hub

import (
	"encoding/json"
	"sync"

	"relay/pkg/envelope"
	"relay/pkg/log"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
)

const DefaultSendBuffer = 64

type Config struct {
	SendBuffer int
	Router     RouterConfig
}

// Hub owns the connection registry of a gateway process and routes bus
// events to it.
type Hub struct {
	registry   *Registry
	router     *Router
	sendBuffer int
	logger     zerolog.Logger
}

func New(cfg Config) *Hub {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSendBuffer
	}
	reg := NewRegistry()
	return &Hub{
		registry:   reg,
		router:     NewRouter(reg, cfg.Router),
		sendBuffer: cfg.SendBuffer,
		logger:     log.WithComponent("gateway"),
	}
}

// Route delivers e to its recipient if connected. It is the subscriber's
// handler.
func (h *Hub) Route(e envelope.Event) Outcome {
	return h.router.Route(e)
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) ConnectedUsers() int {
	return h.registry.Len()
}

// HandleClientConn runs one websocket session until the client goes away.
// Sessions without a user id are served but never registered.
func (h *Hub) HandleClientConn(c *websocket.Conn, userID string) {
	logger := log.WithUser(h.logger, userID)
	cc := newClientConn(c, userID, h.sendBuffer, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		cc.writePump()
	}()

	token := h.registry.Register(userID, cc)
	if token != "" {
		logger.Info().Int("connected_users", h.registry.Len()).Msg("client connected")
	} else {
		logger.Info().Msg("anonymous client connected, not routable")
	}

	defer func() {
		if token != "" {
			h.registry.Unregister(userID, token)
		}
		cc.shutdown()
		wg.Wait()
		c.Close()
		logger.Info().Int("connected_users", h.registry.Len()).Msg("client disconnected")
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			cc.Send(EventError, "invalid JSON")
			continue
		}
		if f.Event == EventPing {
			cc.Send(EventPong, nil)
		}
	}
}
