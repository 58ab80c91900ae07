package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"relay/pkg/config"
	"relay/pkg/envelope"
	"relay/pkg/log"
	"relay/pkg/metrics"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
)

// ErrPublishExhausted is matched by every PublishError.
var ErrPublishExhausted = errors.New("publish attempts exhausted")

// PublishError reports a publish that never reached the bus. Err is the
// error of the last attempt.
type PublishError struct {
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

func (e *PublishError) Is(target error) bool {
	return target == ErrPublishExhausted
}

// Publisher hands events to the bus topic with a bounded retry policy.
type Publisher struct {
	bus    Bus
	topic  string
	cfg    config.PublishConfig
	logger zerolog.Logger
}

func NewPublisher(bus Bus, topic string, cfg config.PublishConfig) *Publisher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = config.DefaultPublishMaxAttempts
	}
	return &Publisher{
		bus:    bus,
		topic:  topic,
		cfg:    cfg,
		logger: log.WithComponent("publisher"),
	}
}

// Publish serializes e and writes it to the topic. A nil error means the bus
// accepted the event; nothing is promised about subscribers.
func (p *Publisher) Publish(ctx context.Context, e envelope.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	payload, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	attempts := 0
	err = retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.PublishRetries.Inc()
		}
		if err := p.attempt(ctx, payload); err != nil {
			p.logger.Warn().Err(err).
				Str("user_id", e.UserID).
				Int("attempt", attempts).
				Int("max_attempts", p.cfg.MaxAttempts).
				Msg("publish attempt failed")
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		metrics.PublishTotal.WithLabelValues(metrics.OutcomeFail).Inc()
		p.logger.Error().Err(err).Str("user_id", e.UserID).Int("attempts", attempts).Msg("publish exhausted")
		return &PublishError{Attempts: attempts, Err: err}
	}

	metrics.PublishTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	p.logger.Debug().Str("user_id", e.UserID).Str("type", e.Type).Int("attempts", attempts).Msg("event published")
	return nil
}

func (p *Publisher) attempt(ctx context.Context, payload []byte) error {
	if p.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		defer cancel()
	}
	return p.bus.Publish(ctx, p.topic, payload)
}

// backoff allows MaxAttempts-1 retries. A zero RetryDelay retries right
// away; a positive one grows exponentially with jitter up to MaxRetryDelay.
func (p *Publisher) backoff() retry.Backoff {
	var b retry.Backoff
	if p.cfg.RetryDelay > 0 {
		b = retry.NewExponential(p.cfg.RetryDelay)
		b = retry.WithJitterPercent(20, b)
		if p.cfg.MaxRetryDelay > 0 {
			b = retry.WithCappedDuration(p.cfg.MaxRetryDelay, b)
		}
	} else {
		b = retry.BackoffFunc(func() (time.Duration, bool) {
			return 0, false
		})
	}
	return retry.WithMaxRetries(uint64(p.cfg.MaxAttempts-1), b)
}
