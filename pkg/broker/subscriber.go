package broker

import (
	"context"
	"errors"
	"net"
	"time"

	"relay/pkg/envelope"
	"relay/pkg/log"
	"relay/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultReconnectPause is how long Run waits after losing the bus before
// subscribing again.
const DefaultReconnectPause = time.Second

// DefaultHealthInterval is how long the subscription may stay silent before
// it is pinged. A ping left unanswered for another interval marks the link
// dead.
const DefaultHealthInterval = 15 * time.Second

type HandlerFunc func(envelope.Event)

// Subscriber keeps one subscription to the topic open for the life of the
// process and hands every decoded event to its handler, in bus order.
type Subscriber struct {
	broker   *Broker
	channel  string
	handler  HandlerFunc
	pause    time.Duration
	interval time.Duration
	logger   zerolog.Logger
}

func NewSubscriber(b *Broker, fn HandlerFunc) *Subscriber {
	return &Subscriber{
		broker:   b,
		channel:  b.Topic(),
		handler:  fn,
		pause:    DefaultReconnectPause,
		interval: DefaultHealthInterval,
		logger:   log.WithComponent("subscriber"),
	}
}

// SetReconnectPause overrides DefaultReconnectPause.
func (s *Subscriber) SetReconnectPause(d time.Duration) {
	s.pause = d
}

// SetHealthInterval overrides DefaultHealthInterval. Non-positive values
// are ignored.
func (s *Subscriber) SetHealthInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// Run blocks until ctx is cancelled. Each time the link is judged lost the
// subscription is dropped and opened again on a fresh connection.
func (s *Subscriber) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			s.logger.Info().Str("channel", s.channel).Msg("subscription closed")
			return nil
		}
		metrics.SetBusConnected(false)
		metrics.BusReconnects.Inc()
		s.logger.Warn().Err(err).Str("channel", s.channel).Dur("retry_in", s.pause).Msg("bus link lost")

		select {
		case <-ctx.Done():
			s.logger.Info().Str("channel", s.channel).Msg("subscription closed")
			return nil
		case <-time.After(s.pause):
		}
	}
}

var errPingUnanswered = errors.New("bus did not answer ping")

// session runs one subscription until it fails, goes silent past a ping, or
// ctx ends.
func (s *Subscriber) session(ctx context.Context) error {
	sub := s.broker.Subscribe(ctx, s.channel)
	stop := context.AfterFunc(ctx, func() {
		sub.Close()
	})
	defer stop()
	defer sub.Close()

	pinged := false
	for {
		msg, err := sub.ReceiveTimeout(ctx, s.interval)
		if err != nil {
			if ctx.Err() != nil || !isTimeout(err) {
				return err
			}
			if pinged {
				return errPingUnanswered
			}
			if err := sub.Ping(ctx); err != nil {
				return err
			}
			pinged = true
			continue
		}

		pinged = false
		metrics.SetBusConnected(true)

		switch m := msg.(type) {
		case *redis.Subscription:
			s.logger.Info().Str("channel", m.Channel).Str("kind", m.Kind).Int("count", m.Count).Msg("subscribed")
		case *redis.Message:
			s.dispatch(m.Payload)
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *Subscriber) dispatch(payload string) {
	metrics.BusMessagesReceived.Inc()

	e, err := envelope.Unmarshal([]byte(payload))
	if err != nil {
		metrics.BusDecodeErrors.Inc()
		s.logger.Warn().Err(err).Int("bytes", len(payload)).Msg("dropping undecodable message")
		return
	}
	s.handler(e)
}
