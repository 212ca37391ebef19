// Package transport owns the connections to the shared coordination store.
// Higher layers speak this interface only; the concrete implementations are
// a Redis adapter and an in-process hub used for tests and single-pod mode.
package transport

import (
	"context"
	"time"
)

// Inbound is one frame delivered on a subscribed channel.
type Inbound struct {
	Channel string
	Payload []byte
}

// Transport is the backing-store contract the coordination subsystem needs:
// keyed writes with expiry, an atomic set-if-absent, incremental key
// enumeration and a fire-and-forget publish/subscribe primitive.
//
// Implementations must degrade rather than fail: when the store is
// unreachable every operation is a logged no-op returning its zero result,
// so the hosting application keeps running in single-pod mode.
type Transport interface {
	// Connected reports whether the backing store is currently reachable.
	Connected() bool

	// SetNX atomically sets key to value with a TTL if the key is absent.
	// Returns true when this call created the key.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Set overwrites key with value and refreshes its TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get fetches a key. The boolean is false when the key is absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Del removes a key.
	Del(ctx context.Context, key string) error

	// Scan enumerates keys matching a glob pattern.
	Scan(ctx context.Context, pattern string, count int64) ([]string, error)

	// Publish sends payload to every subscriber of channel. Fire-and-forget.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe starts receiving on the given channels over the dedicated
	// subscriber connection. The returned channel is closed on Close.
	Subscribe(ctx context.Context, channels ...string) (<-chan Inbound, error)

	// Unsubscribe stops the subscription, best effort.
	Unsubscribe(ctx context.Context) error

	// Close releases both connections. Idempotent.
	Close() error
}
