package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisDispatcher publishes events as JSON on a Redis channel.
type RedisDispatcher struct {
	rdb     *goredis.Client
	channel string
}

// RedisConfig locates the Redis server and channel.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// NewRedisDispatcher connects and verifies the connection.
func NewRedisDispatcher(ctx context.Context, cfg RedisConfig) (*RedisDispatcher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	channel := cfg.Channel
	if channel == "" {
		channel = "gradewise.events"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisDispatcher{rdb: rdb, channel: channel}, nil
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, e Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := d.rdb.Publish(ctx, d.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe forwards events published on the channel to fn until ctx ends.
func (d *RedisDispatcher) Subscribe(ctx context.Context, fn func(Event)) error {
	sub := d.rdb.Subscribe(ctx, d.channel)
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
				var e Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					continue
				}
				fn(e)
			}
		}
	}()
	return nil
}

// Close releases the connection.
func (d *RedisDispatcher) Close() error {
	return d.rdb.Close()
}
