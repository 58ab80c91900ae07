package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"relay/pkg/envelope"
	"relay/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func routeCounters() (delivered, offline, failed, dup float64) {
	return testutil.ToFloat64(metrics.MessagesDelivered),
		testutil.ToFloat64(metrics.MessagesDropped.WithLabelValues(metrics.ReasonOffline)),
		testutil.ToFloat64(metrics.MessagesDropped.WithLabelValues(metrics.ReasonSendFailed)),
		testutil.ToFloat64(metrics.MessagesDropped.WithLabelValues(metrics.ReasonDuplicate))
}

func TestRouteDelivered(t *testing.T) {
	reg := NewRegistry()
	c := &fakeConn{}
	reg.Register("42", c)
	r := NewRouter(reg, RouterConfig{})

	delivered, offline, _, _ := routeCounters()
	e := envelope.New(envelope.TypeOrderCreated, "42", "Order #A1 has been created!")
	assert.Equal(t, Delivered, r.Route(e))
	d2, o2, _, _ := routeCounters()

	assert.Equal(t, delivered+1, d2)
	assert.Equal(t, offline, o2)
	require.Len(t, c.received(), 1)
	assert.Equal(t, Frame{Event: EventNotification, Data: "Order #A1 has been created!"}, c.received()[0])
}

func TestRouteOffline(t *testing.T) {
	reg := NewRegistry()
	reg.Register("7", &fakeConn{})
	r := NewRouter(reg, RouterConfig{})

	delivered, offline, _, _ := routeCounters()
	assert.Equal(t, Offline, r.Route(envelope.New(envelope.TypeOrderCreated, "42", "hi")))
	d2, o2, _, _ := routeCounters()

	assert.Equal(t, delivered, d2)
	assert.Equal(t, offline+1, o2)
	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Lookup("42")
	assert.False(t, ok)
}

func TestRouteSendFailed(t *testing.T) {
	reg := NewRegistry()
	reg.Register("42", &fakeConn{err: errors.New("gone")})
	r := NewRouter(reg, RouterConfig{})

	delivered, _, failed, _ := routeCounters()
	assert.Equal(t, SendFailed, r.Route(envelope.New(envelope.TypeOrderCreated, "42", "hi")))
	d2, _, f2, _ := routeCounters()

	assert.Equal(t, delivered, d2)
	assert.Equal(t, failed+1, f2)
}

func TestRouteSuppressesDuplicates(t *testing.T) {
	reg := NewRegistry()
	c := &fakeConn{}
	reg.Register("42", c)
	r := NewRouter(reg, RouterConfig{DedupTTL: time.Minute, DedupSize: 16})

	e := envelope.New(envelope.TypeOrderCreated, "42", "hi")
	_, _, _, dup := routeCounters()
	assert.Equal(t, Delivered, r.Route(e))
	assert.Equal(t, Duplicate, r.Route(e))
	_, _, _, dup2 := routeCounters()

	assert.Len(t, c.received(), 1)
	assert.Equal(t, dup+1, dup2)

	noID := envelope.Event{Type: envelope.TypeOrderCreated, UserID: "42", Message: "legacy"}
	assert.Equal(t, Delivered, r.Route(noID))
	assert.Equal(t, Delivered, r.Route(noID))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "offline", Offline.String())
	assert.Equal(t, "send_failed", SendFailed.String())
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}

// Users that stay connected for the whole run get every event exactly once,
// while other users connect and disconnect around them.
func TestRouteConcurrentWithChurn(t *testing.T) {
	reg := NewRegistry()
	r := NewRouter(reg, RouterConfig{DedupTTL: time.Minute})

	const stable = 20
	const events = 50

	conns := make([]*fakeConn, stable)
	for i := range conns {
		conns[i] = &fakeConn{}
		reg.Register(fmt.Sprintf("stable-%d", i), conns[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < stable; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("stable-%d", i)
			for n := 0; n < events; n++ {
				assert.Equal(t, Delivered, r.Route(envelope.New(envelope.TypeOrderCreated, id, fmt.Sprint(n))))
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("churn-%d", i)
			for n := 0; n < events; n++ {
				tok := reg.Register(id, &fakeConn{})
				r.Route(envelope.New(envelope.TypeOrderCreated, id, "x"))
				reg.Unregister(id, tok)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, stable, reg.Len())
	for i, c := range conns {
		got := c.received()
		require.Len(t, got, events, "stable-%d", i)
		for n, f := range got {
			assert.Equal(t, fmt.Sprint(n), f.Data)
		}
	}
}
