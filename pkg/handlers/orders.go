package handlers

import (
	"context"
	"encoding/json"

	"relay/pkg/envelope"
	"relay/pkg/log"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Publisher is the bus-facing side the order handler needs.
type Publisher interface {
	Publish(ctx context.Context, e envelope.Event) error
}

type OrdersHandler struct {
	pub    Publisher
	logger zerolog.Logger
}

func NewOrders(pub Publisher) *OrdersHandler {
	return &OrdersHandler{pub: pub, logger: log.WithComponent("producer")}
}

type createOrderRequest struct {
	UserID  json.RawMessage `json:"user_id"`
	OrderID json.RawMessage `json:"order_id"`
}

// Create simulates placing an order and announces it to the ordering user.
// A 200 means the bus accepted the event, not that the user saw it.
func (h *OrdersHandler) Create(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid JSON"})
	}

	userID, err := envelope.UserIDString(req.UserID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	e, err := envelope.NewOrderCreated(userID, req.OrderID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	if err := h.pub.Publish(c.UserContext(), e); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("order notification not published")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"success": false, "error": "notification bus unavailable"})
	}

	h.logger.Info().Str("user_id", userID).Str("event_id", e.ID).Msg("order created")
	return c.JSON(fiber.Map{"success": true, "sent": e})
}
