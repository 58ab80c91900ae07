package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TypeOrderCreated is the event kind emitted when an order is placed.
const TypeOrderCreated = "order_created"

var (
	ErrMissingUserID  = errors.New("user_id is required")
	ErrInvalidOrderID = errors.New("order_id must be a non-empty string or a number")
)

// Event is the record carried over the bus. It is built once by the
// producing side and never modified afterwards.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	UserID    string          `json:"user_id"`
	OrderID   json.RawMessage `json:"order_id,omitempty"`
	Message   string          `json:"message"`
	Timestamp int64           `json:"ts,omitempty"`
}

func New(eventType, userID, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewOrderCreated builds the order_created event for userID. orderID must
// be a string or a JSON number; it is kept verbatim in the payload.
func NewOrderCreated(userID string, orderID json.RawMessage) (Event, error) {
	if strings.TrimSpace(userID) == "" {
		return Event{}, ErrMissingUserID
	}
	label, err := OrderLabel(orderID)
	if err != nil {
		return Event{}, err
	}
	e := New(TypeOrderCreated, userID, fmt.Sprintf("Order #%s has been created!", label))
	e.OrderID = orderID
	return e, nil
}

// OrderLabel renders an order id the way it appears in the message text:
// strings without quotes, numbers in plain decimal.
func OrderLabel(raw json.RawMessage) (string, error) {
	label, ok := scalarString(raw)
	if !ok {
		return "", ErrInvalidOrderID
	}
	return label, nil
}

// UserIDString normalizes a JSON user id (string or number) to its string
// routing key. Numbers render like token claims do, so 7, 7.0 and 7e0 all
// route to "7".
func UserIDString(raw json.RawMessage) (string, error) {
	id, ok := scalarString(raw)
	if !ok {
		return "", ErrMissingUserID
	}
	return id, nil
}

// scalarString decodes exactly one JSON string or number. Blank strings,
// other kinds and trailing data are rejected.
func scalarString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil || dec.More() {
		return "", false
	}
	switch id := v.(type) {
	case string:
		if strings.TrimSpace(id) == "" {
			return "", false
		}
		return id, true
	case json.Number:
		f, err := strconv.ParseFloat(id.String(), 64)
		if err != nil {
			return "", false
		}
		return strconv.FormatFloat(f, 'f', -1, 64), true
	default:
		return "", false
	}
}

// Validate checks the fields every event needs before it enters the bus.
func (e Event) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return ErrMissingUserID
	}
	return nil
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(data []byte) (Event, error) {
	var e Event
	err := json.Unmarshal(data, &e)
	return e, err
}
