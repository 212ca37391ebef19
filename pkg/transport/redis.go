package transport

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meftunca/podsync/pkg/common"
	"github.com/meftunca/podsync/pkg/config"
)

// RedisTransport implements Transport over two go-redis connections: one
// client for commands and PUBLISH, and a second client owning the dedicated
// SUBSCRIBE connection. Subscriber connections cannot issue ordinary
// commands, so multiplexing would confuse the protocol and head-of-line
// block message delivery behind command traffic.
type RedisTransport struct {
	cmd redis.UniversalClient
	sub redis.UniversalClient

	log common.Logger

	connMutex sync.RWMutex
	connected bool

	pubsub  *redis.PubSub
	inbound chan Inbound
	closed  bool
}

// NewRedisTransport builds the adapter and probes connectivity. An
// unreachable store does not fail construction: the adapter starts in
// disconnected mode and every operation no-ops with a warning, leaving the
// hosting application in degraded single-pod operation.
func NewRedisTransport(cfg config.RedisConfig, log common.Logger) *RedisTransport {
	if log == nil {
		log = common.NewLogger("transport")
	}

	t := &RedisTransport{
		cmd: newClient(cfg),
		sub: newClient(cfg),
		log: log,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := t.cmd.Ping(ctx).Err(); err != nil {
		t.log.Warnf("coordination store unreachable, running in degraded single-pod mode: %v", err)
		return t
	}

	t.connected = true
	return t
}

func newClient(cfg config.RedisConfig) redis.UniversalClient {
	addresses := cfg.Addresses
	if len(addresses) == 0 {
		addresses = []string{"localhost:6379"}
	}

	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        addresses,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
}

// Connected reports whether the last connectivity probe succeeded.
func (t *RedisTransport) Connected() bool {
	t.connMutex.RLock()
	defer t.connMutex.RUnlock()
	return t.connected
}

// Ping re-probes the store and updates the connected flag.
func (t *RedisTransport) Ping(ctx context.Context) error {
	err := t.cmd.Ping(ctx).Err()

	t.connMutex.Lock()
	t.connected = err == nil
	t.connMutex.Unlock()

	return err
}

func (t *RedisTransport) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if !t.Connected() {
		t.log.Warnf("SETNX %s skipped: store disconnected", key)
		return false, nil
	}
	return t.cmd.SetNX(ctx, key, value, ttl).Result()
}

func (t *RedisTransport) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !t.Connected() {
		t.log.Warnf("SET %s skipped: store disconnected", key)
		return nil
	}
	return t.cmd.Set(ctx, key, value, ttl).Err()
}

func (t *RedisTransport) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !t.Connected() {
		t.log.Warnf("GET %s skipped: store disconnected", key)
		return nil, false, nil
	}

	data, err := t.cmd.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (t *RedisTransport) Del(ctx context.Context, key string) error {
	if !t.Connected() {
		t.log.Warnf("DEL %s skipped: store disconnected", key)
		return nil
	}
	return t.cmd.Del(ctx, key).Err()
}

func (t *RedisTransport) Scan(ctx context.Context, pattern string, count int64) ([]string, error) {
	if !t.Connected() {
		t.log.Warnf("SCAN %s skipped: store disconnected", pattern)
		return nil, nil
	}

	var keys []string
	var cursor uint64
	for {
		batch, next, err := t.cmd.Scan(ctx, cursor, pattern, count).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}

func (t *RedisTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if !t.Connected() {
		t.log.Warnf("PUBLISH %s skipped: store disconnected", channel)
		return nil
	}
	return t.cmd.Publish(ctx, channel, payload).Err()
}

func (t *RedisTransport) Subscribe(ctx context.Context, channels ...string) (<-chan Inbound, error) {
	t.connMutex.Lock()
	defer t.connMutex.Unlock()

	if t.inbound != nil {
		return t.inbound, nil
	}

	t.inbound = make(chan Inbound, 64)

	if !t.connected {
		t.log.Warnf("SUBSCRIBE skipped: store disconnected")
		return t.inbound, nil
	}

	t.pubsub = t.sub.Subscribe(ctx, channels...)

	go func(ps *redis.PubSub, out chan<- Inbound) {
		defer close(out)
		for msg := range ps.Channel() {
			out <- Inbound{Channel: msg.Channel, Payload: []byte(msg.Payload)}
		}
	}(t.pubsub, t.inbound)

	return t.inbound, nil
}

func (t *RedisTransport) Unsubscribe(ctx context.Context) error {
	t.connMutex.Lock()
	ps := t.pubsub
	t.connMutex.Unlock()

	if ps == nil {
		return nil
	}
	return ps.Unsubscribe(ctx)
}

// Close releases both connections. Safe to call more than once.
func (t *RedisTransport) Close() error {
	t.connMutex.Lock()
	defer t.connMutex.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.connected = false

	if t.pubsub != nil {
		if err := t.pubsub.Close(); err != nil {
			t.log.Warnf("subscriber close: %v", err)
		}
	} else if t.inbound != nil {
		close(t.inbound)
	}

	if err := t.sub.Close(); err != nil {
		t.log.Warnf("subscriber connection close: %v", err)
	}
	return t.cmd.Close()
}
