package hub

import (
	"sync"
	"time"

	"relay/pkg/envelope"
	"relay/pkg/log"
	"relay/pkg/metrics"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
)

// Outcome is the result of routing one event.
type Outcome int

const (
	Delivered Outcome = iota
	Offline
	SendFailed
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Offline:
		return "offline"
	case SendFailed:
		return "send_failed"
	case Duplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Directory resolves a user id to its live connection.
type Directory interface {
	Lookup(userID string) (Conn, bool)
}

type RouterConfig struct {
	// DedupTTL is how long an event id is remembered. Zero disables
	// duplicate suppression.
	DedupTTL  time.Duration
	DedupSize int
}

// Router forwards each event to its recipient's current connection, or
// counts it as dropped. It never waits for a recipient to appear.
type Router struct {
	dir    Directory
	logger zerolog.Logger

	seenMu sync.Mutex
	seen   *expirable.LRU[string, struct{}]
}

func NewRouter(dir Directory, cfg RouterConfig) *Router {
	r := &Router{
		dir:    dir,
		logger: log.WithComponent("router"),
	}
	if cfg.DedupTTL > 0 {
		size := cfg.DedupSize
		if size <= 0 {
			size = 10000
		}
		r.seen = expirable.NewLRU[string, struct{}](size, nil, cfg.DedupTTL)
	}
	return r
}

func (r *Router) Route(e envelope.Event) Outcome {
	if r.duplicate(e.ID) {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonDuplicate).Inc()
		r.logger.Debug().Str("event_id", e.ID).Str("user_id", e.UserID).Msg("duplicate event dropped")
		return Duplicate
	}

	conn, ok := r.dir.Lookup(e.UserID)
	if !ok {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonOffline).Inc()
		r.logger.Debug().Str("user_id", e.UserID).Str("type", e.Type).Msg("recipient offline, dropped")
		return Offline
	}

	if err := conn.Send(EventNotification, e.Message); err != nil {
		metrics.MessagesDropped.WithLabelValues(metrics.ReasonSendFailed).Inc()
		r.logger.Warn().Err(err).Str("user_id", e.UserID).Msg("send failed, dropped")
		return SendFailed
	}

	metrics.MessagesDelivered.Inc()
	r.logger.Debug().Str("user_id", e.UserID).Str("type", e.Type).Msg("delivered")
	return Delivered
}

// duplicate records id and reports whether it had been seen already.
// Events without an id are never treated as duplicates.
func (r *Router) duplicate(id string) bool {
	if r.seen == nil || id == "" {
		return false
	}
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if r.seen.Contains(id) {
		return true
	}
	r.seen.Add(id, struct{}{})
	return false
}
