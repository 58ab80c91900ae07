package handlers

import (
	"relay/pkg/hub"
	"relay/pkg/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// RegisterGateway mounts the websocket endpoint and the hub status route.
func RegisterGateway(app *fiber.App, h *hub.Hub, jwtSecret string) {
	app.Get("/hub/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"connected_users": h.ConnectedUsers()})
	})

	app.Use("/ws", middleware.WSIdentity(jwtSecret))
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals(middleware.LocalUserID).(string)
		h.HandleClientConn(c, userID)
	}))
}

// RegisterProducer mounts the order endpoint.
func RegisterProducer(app *fiber.App, orders *OrdersHandler) {
	app.Post("/create-order", orders.Create)
}
