package transport

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/meftunca/podsync/pkg/types"
)

// MemoryHub is a process-local stand-in for the shared coordination store.
// Multiple MemoryTransport instances attached to one hub see the same key
// space and pub/sub channels, which is enough to exercise the full
// multi-pod protocol inside a single test process.
type MemoryHub struct {
	mu     sync.Mutex
	kv     map[string]memoryEntry
	subs   map[*MemoryTransport]map[string]bool
	clock  func() time.Time
	closed bool
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{
		kv:    make(map[string]memoryEntry),
		subs:  make(map[*MemoryTransport]map[string]bool),
		clock: time.Now,
	}
}

// Transport attaches a new transport to the hub.
func (h *MemoryHub) Transport() *MemoryTransport {
	return &MemoryTransport{
		hub:       h,
		connected: true,
		inbound:   make(chan Inbound, 64),
	}
}

func (h *MemoryHub) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && h.clock().After(e.expiresAt)
}

func (h *MemoryHub) ttlFrom(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return h.clock().Add(ttl)
}

// MemoryTransport implements Transport against a shared MemoryHub. The
// SetConnected and FailWrites switches simulate the store dropping off the
// network or silently rejecting writes.
type MemoryTransport struct {
	hub *MemoryHub

	mu         sync.Mutex
	connected  bool
	failWrites bool
	subscribed bool
	closed     bool
	inbound    chan Inbound
}

// SetConnected flips the simulated connectivity state.
func (t *MemoryTransport) SetConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}

// FailWrites makes SetNX and Set return errors, simulating a store that is
// reachable but rejecting lease writes.
func (t *MemoryTransport) FailWrites(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failWrites = fail
}

func (t *MemoryTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected && !t.closed
}

func (t *MemoryTransport) writeAllowed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failWrites {
		return types.NewCoordError(types.ErrCodeConnectionLost, "simulated write failure")
	}
	return nil
}

func (t *MemoryTransport) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if !t.Connected() {
		return false, nil
	}
	if err := t.writeAllowed(); err != nil {
		return false, err
	}

	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if e, ok := h.kv[key]; ok && !h.expired(e) {
		return false, nil
	}
	h.kv[key] = memoryEntry{value: append([]byte(nil), value...), expiresAt: h.ttlFrom(ttl)}
	return true, nil
}

func (t *MemoryTransport) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !t.Connected() {
		return nil
	}
	if err := t.writeAllowed(); err != nil {
		return err
	}

	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	h.kv[key] = memoryEntry{value: append([]byte(nil), value...), expiresAt: h.ttlFrom(ttl)}
	return nil
}

func (t *MemoryTransport) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if !t.Connected() {
		return nil, false, nil
	}

	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.kv[key]
	if !ok || h.expired(e) {
		delete(h.kv, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (t *MemoryTransport) Del(ctx context.Context, key string) error {
	if !t.Connected() {
		return nil
	}

	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.kv, key)
	return nil
}

func (t *MemoryTransport) Scan(ctx context.Context, pattern string, count int64) ([]string, error) {
	if !t.Connected() {
		return nil, nil
	}

	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	var keys []string
	for key, e := range h.kv {
		if h.expired(e) {
			delete(h.kv, key)
			continue
		}
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (t *MemoryTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	if !t.Connected() {
		return nil
	}

	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub, channels := range h.subs {
		if !channels[channel] {
			continue
		}
		if !sub.Connected() {
			// Briefly disconnected subscribers simply miss the message.
			continue
		}
		select {
		case sub.inbound <- Inbound{Channel: channel, Payload: append([]byte(nil), payload...)}:
		default:
			// No backpressure: drop when the subscriber cannot keep up.
		}
	}
	return nil
}

func (t *MemoryTransport) Subscribe(ctx context.Context, channels ...string) (<-chan Inbound, error) {
	t.mu.Lock()
	t.subscribed = true
	t.mu.Unlock()

	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.subs[t]
	if set == nil {
		set = make(map[string]bool)
		h.subs[t] = set
	}
	for _, ch := range channels {
		set[ch] = true
	}
	return t.inbound, nil
}

func (t *MemoryTransport) Unsubscribe(ctx context.Context) error {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, t)
	return nil
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	h := t.hub
	h.mu.Lock()
	delete(h.subs, t)
	h.mu.Unlock()

	close(t.inbound)
	return nil
}
