package broker

import (
	"context"
	"errors"
	"fmt"
	"net"

	"relay/pkg/config"
	"relay/pkg/log"
	"relay/pkg/metrics"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Bus is the publish side of the message bus.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Broker owns the Redis connection shared by the publisher and the
// subscriber of one process.
type Broker struct {
	rdb    *redis.Client
	topic  string
	logger zerolog.Logger
}

// New connects to the Redis bus described by cfg. An unreachable server is
// only fatal when cfg.RequirePing is set; otherwise the client keeps
// redialing on demand.
func New(ctx context.Context, cfg config.BusConfig) (*Broker, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Retries belong to the Publisher's policy, not to the client, whatever
	// the URL asks for.
	opt.MaxRetries = -1

	b := &Broker{
		rdb:    redis.NewClient(opt),
		topic:  cfg.Topic,
		logger: log.WithComponent("broker"),
	}
	b.rdb.AddHook(linkHook{})

	if err := b.rdb.Ping(ctx).Err(); err != nil {
		if cfg.RequirePing {
			b.rdb.Close()
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		b.logger.Warn().Err(err).Str("addr", opt.Addr).Msg("redis unreachable, continuing")
	} else {
		b.logger.Info().Str("addr", opt.Addr).Str("topic", cfg.Topic).Msg("redis connected")
	}

	return b, nil
}

// Topic returns the channel all events flow through.
func (b *Broker) Topic() string {
	return b.topic
}

func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription to channels. The returned PubSub
// reconnects and resubscribes by itself after link failures.
func (b *Broker) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return b.rdb.Subscribe(ctx, channels...)
}

func (b *Broker) Close() error {
	return b.rdb.Close()
}

// linkHook keeps the bus link gauge in step with what the client observes
// on dial and on every command.
type linkHook struct{}

func (linkHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		cn, err := next(ctx, network, addr)
		metrics.SetBusConnected(err == nil)
		return cn, err
	}
}

func (linkHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		observeLink(err)
		return err
	}
}

func (linkHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		observeLink(err)
		return err
	}
}

func observeLink(err error) {
	switch {
	case err == nil, errors.Is(err, redis.Nil):
		metrics.SetBusConnected(true)
	case isLinkError(err):
		metrics.SetBusConnected(false)
	}
}

// isLinkError reports whether err means the connection itself failed, as
// opposed to a server reply error or a caller cancellation.
func isLinkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rerr redis.Error
	return !errors.As(err, &rerr)
}
