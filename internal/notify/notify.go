// Package notify carries the optional job-created wake signal between the
// API and workers over Redis pub/sub. Workers still poll; the signal only
// cuts latency between Create and the next Claim, and the queue stays
// correct with the no-op notifier when Redis is not configured.
package notify

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultChannel = "jobs.created"

// Notifier announces that a job became claimable.
type Notifier interface {
	JobCreated(ctx context.Context)
	Close() error
}

// Noop satisfies Notifier without any backing transport.
type Noop struct{}

func (Noop) JobCreated(context.Context) {}
func (Noop) Close() error               { return nil }

// Redis publishes and subscribes job-created signals on a pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedis connects to the Redis at url.
func NewRedis(url string, logger zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{
		client:  redis.NewClient(opts),
		channel: defaultChannel,
		logger:  logger,
	}, nil
}

// JobCreated publishes a wake signal. Best effort: a publish failure is
// logged, never surfaced, since polling covers for lost signals.
func (r *Redis) JobCreated(ctx context.Context) {
	if err := r.client.Publish(ctx, r.channel, "1").Err(); err != nil {
		r.logger.Warn().Err(err).Msg("notify: publish failed")
	}
}

// Subscribe returns a channel that receives at most one pending wake signal
// at a time, and a stop function releasing the subscription.
func (r *Redis) Subscribe(ctx context.Context) (<-chan struct{}, func()) {
	pubsub := r.client.Subscribe(ctx, r.channel)
	wake := make(chan struct{}, 1)
	go func() {
		for range pubsub.Channel() {
			select {
			case wake <- struct{}{}:
			default:
			}
		}
	}()
	return wake, func() { _ = pubsub.Close() }
}

func (r *Redis) Close() error {
	return r.client.Close()
}

var (
	_ Notifier = Noop{}
	_ Notifier = (*Redis)(nil)
)
