package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"relay/pkg/broker"
	"relay/pkg/envelope"
	"relay/pkg/server"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []envelope.Event
}

func (f *fakePublisher) Publish(_ context.Context, e envelope.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return f.err
}

func (f *fakePublisher) published() []envelope.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]envelope.Event(nil), f.events...)
}

func newProducerApp(pub Publisher) *fiber.App {
	app := server.NewApp("producer-test", "")
	RegisterProducer(app, NewOrders(pub))
	return app
}

func postOrder(t *testing.T, app *fiber.App, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/create-order", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return resp.StatusCode, out
}

func TestCreateOrderPublishesEvent(t *testing.T) {
	pub := &fakePublisher{}
	app := newProducerApp(pub)

	status, body := postOrder(t, app, `{"user_id":"42","order_id":"A1"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	sent, ok := body["sent"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, envelope.TypeOrderCreated, sent["type"])
	assert.Equal(t, "42", sent["user_id"])
	assert.Equal(t, "Order #A1 has been created!", sent["message"])

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, "42", events[0].UserID)
	assert.Equal(t, "Order #A1 has been created!", events[0].Message)
	assert.NotEmpty(t, events[0].ID)
}

func TestCreateOrderAcceptsNumericIDs(t *testing.T) {
	pub := &fakePublisher{}
	app := newProducerApp(pub)

	status, body := postOrder(t, app, `{"user_id":7,"order_id":1001}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, "7", events[0].UserID)
	assert.Equal(t, "Order #1001 has been created!", events[0].Message)
}

func TestCreateOrderNormalizesNumberSpelling(t *testing.T) {
	pub := &fakePublisher{}
	app := newProducerApp(pub)

	status, _ := postOrder(t, app, `{"user_id":7.0,"order_id":1e3}`)
	assert.Equal(t, fiber.StatusOK, status)

	events := pub.published()
	require.Len(t, events, 1)
	assert.Equal(t, "7", events[0].UserID)
	assert.Equal(t, "Order #1000 has been created!", events[0].Message)
}

func TestCreateOrderRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"user_id":`},
		{"missing user", `{"order_id":"A1"}`},
		{"empty user", `{"user_id":"  ","order_id":"A1"}`},
		{"null user", `{"user_id":null,"order_id":"A1"}`},
		{"missing order", `{"user_id":"42"}`},
		{"empty order", `{"user_id":"42","order_id":""}`},
		{"object order", `{"user_id":"42","order_id":{"id":1}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			app := newProducerApp(pub)

			status, body := postOrder(t, app, tt.body)
			assert.Equal(t, fiber.StatusBadRequest, status)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
			assert.Empty(t, pub.published())
		})
	}
}

func TestCreateOrderReportsExhaustedBus(t *testing.T) {
	pub := &fakePublisher{err: &broker.PublishError{Attempts: 3, Err: errors.New("connection refused")}}
	app := newProducerApp(pub)

	status, body := postOrder(t, app, `{"user_id":"42","order_id":"A1"}`)
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "notification bus unavailable", body["error"])
	assert.Len(t, pub.published(), 1)
}
