package hub

// Frame is the JSON shape of every websocket message in both directions.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

const (
	EventNotification = "notification"
	EventPing         = "ping"
	EventPong         = "pong"
	EventError        = "error"
)
