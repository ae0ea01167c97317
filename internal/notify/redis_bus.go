package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "marketplace.notifications"

// RedisBus publishes live events to a Redis channel so that every server
// instance can deliver them to its own subscribers.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
}

// NewRedisBus connects to addr and verifies the connection with a PING.
func NewRedisBus(ctx context.Context, addr, channel string) (*RedisBus, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis address required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBus{rdb: rdb, channel: channel}, nil
}

// Channel returns the pub/sub channel name.
func (b *RedisBus) Channel() string { return b.channel }

// Publish implements Publisher.
func (b *RedisBus) Publish(ctx context.Context, e Event) error {
	if b == nil || b.rdb == nil {
		return errors.New("redis bus not initialized")
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and calls deliver for every
// event received until ctx is done. It returns once the subscription is
// confirmed.
func (b *RedisBus) StartForwarder(ctx context.Context, deliver func(Event)) error {
	if b == nil || b.rdb == nil {
		return errors.New("redis bus not initialized")
	}
	if deliver == nil {
		return errors.New("deliver callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				e, err := decodeEvent(m.Payload)
				if err != nil {
					log.Warn().Err(err).Str("channel", b.channel).Msg("bad notification payload on redis")
					continue
				}
				deliver(e)
			}
		}
	}()
	return nil
}

// Close releases the Redis client.
func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

func decodeEvent(payload string) (Event, error) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return Event{}, err
	}
	if e.UserID == 0 {
		return Event{}, errors.New("event without user_id")
	}
	return e, nil
}
