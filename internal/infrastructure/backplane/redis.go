package backplane

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lanepoint/realtime-gateway/internal/domain/event"
	apperrors "github.com/lanepoint/realtime-gateway/internal/errors"
	"github.com/lanepoint/realtime-gateway/internal/infrastructure/config"
)

const broadcastChannel = "gateway:broadcast"

// Handler delivers one broadcast to this instance's local connections.
type Handler func(event.Broadcast)

// Redis is the cross-instance broadcast fabric. Every instance publishes
// broadcasts to one pub/sub channel and subscribes to the same channel, so a
// broadcast published anywhere is delivered by every instance to its own
// matching connections. Room membership itself never leaves the instance.
//
// Loss of Redis is not fatal: Publish reports the failure so callers can fall
// back to local-only delivery, and the subscribe loop keeps reconnecting with
// exponential backoff.
type Redis struct {
	client    *redis.Client
	logger    *zap.Logger
	handler   Handler
	connected atomic.Bool
}

func NewRedis(cfg *config.RedisConfig, handler Handler, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.URL,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &Redis{client: client, logger: logger, handler: handler}
}

// Publish hands one broadcast to the fabric. A non-nil error means no
// instance (including this one) will hear about it through the backplane and
// the caller should deliver locally instead.
func (b *Redis) Publish(ctx context.Context, bc event.Broadcast) error {
	payload, err := json.Marshal(bc)
	if err != nil {
		return fmt.Errorf("marshaling broadcast: %w", err)
	}
	if err := b.client.Publish(ctx, broadcastChannel, payload).Err(); err != nil {
		return apperrors.NewBackplaneUnavailable("publish failed").WithCause(err)
	}
	return nil
}

// Connected reports whether the subscribe loop currently holds a live
// subscription. Used by the health endpoint.
func (b *Redis) Connected() bool {
	return b.connected.Load()
}

// Run owns the subscription until ctx is cancelled, reconnecting with
// exponential backoff whenever the subscription drops.
func (b *Redis) Run(ctx context.Context) {
	policy := backoff.WithContext(newPolicy(), ctx)
	for {
		err := b.consume(ctx, policy)
		b.connected.Store(false)
		if ctx.Err() != nil {
			return
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			policy.Reset()
			wait = policy.NextBackOff()
		}
		b.logger.Warn("backplane subscription lost, reconnecting",
			zap.Error(err), zap.Duration("backoff", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (b *Redis) consume(ctx context.Context, policy backoff.BackOff) error {
	pubsub := b.client.Subscribe(ctx, broadcastChannel)
	defer pubsub.Close()

	// Wait for the subscription confirmation before reporting healthy. A
	// fresh outage then starts from the initial backoff interval again.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	policy.Reset()
	b.connected.Store(true)
	b.logger.Info("backplane subscribed", zap.String("channel", broadcastChannel))

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			return err
		}
		var bc event.Broadcast
		if err := json.Unmarshal([]byte(msg.Payload), &bc); err != nil {
			b.logger.Warn("dropping malformed backplane message", zap.Error(err))
			continue
		}
		b.handler(bc)
	}
}

// Close releases the underlying client. Run must already be cancelled.
func (b *Redis) Close() error {
	return b.client.Close()
}

func newPolicy() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 30 * time.Second
	policy.MaxElapsedTime = 0 // retry forever
	return policy
}
