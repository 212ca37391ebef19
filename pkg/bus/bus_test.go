package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meftunca/podsync/pkg/config"
	"github.com/meftunca/podsync/pkg/serialization"
	"github.com/meftunca/podsync/pkg/transport"
	"github.com/meftunca/podsync/pkg/types"
)

func testBusConfig() config.BusConfig {
	return config.BusConfig{
		QueueSize:      16,
		PublishTimeout: time.Second,
	}
}

func testCodec(t *testing.T) serialization.Codec {
	t.Helper()
	codec, err := serialization.NewCodec(config.DefaultConfig().Serialization)
	require.NoError(t, err)
	return codec
}

type recordingEvictor struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingEvictor) Evict(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *recordingEvictor) evicted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}

type recordingLimiter struct {
	mu       sync.Mutex
	platform string
	usage    float64
	calls    int
}

func (r *recordingLimiter) Update(platform string, usage float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platform = platform
	r.usage = usage
	r.calls++
}

type received struct {
	mu   sync.Mutex
	msgs []*types.CoordinationMessage
}

func (r *received) handler() Handler {
	return func(msg *types.CoordinationMessage) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.msgs = append(r.msgs, msg)
	}
}

func (r *received) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *received) first() *types.CoordinationMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		return nil
	}
	return r.msgs[0]
}

func newTestBus(t *testing.T, hub *transport.MemoryHub, podID types.PodID, opts Options) *Bus {
	b := NewBus(hub.Transport(), testCodec(t), testBusConfig(), podID, "podsync", nil, opts)
	require.NoError(t, b.Start())
	t.Cleanup(b.Stop)
	return b
}

func TestBroadcastFanOut(t *testing.T) {
	hub := transport.NewMemoryHub()
	busA := newTestBus(t, hub, "p1-a", Options{})
	busB := newTestBus(t, hub, "p2-b", Options{})

	var recvA, recvB received
	require.NoError(t, busA.OnMessage(types.TypeBroadcast, recvA.handler()))
	require.NoError(t, busB.OnMessage(types.TypeBroadcast, recvB.handler()))

	busA.Broadcast(types.TypeBroadcast, map[string]any{"note": "hello"}, types.PriorityNormal)

	require.Eventually(t, func() bool {
		return recvA.count() == 1 && recvB.count() == 1
	}, 2*time.Second, 10*time.Millisecond, "broadcast should reach every subscribed pod")

	msg := recvB.first()
	assert.Equal(t, types.PodID("p1-a"), msg.SourcePod)
	assert.Equal(t, types.PriorityNormal, msg.Priority)
	assert.NotEmpty(t, msg.ID)
}

func TestSendToPodLocality(t *testing.T) {
	hub := transport.NewMemoryHub()
	busA := newTestBus(t, hub, "p1-a", Options{})
	busB := newTestBus(t, hub, "p2-b", Options{})
	busC := newTestBus(t, hub, "p3-c", Options{})

	var recvA, recvB, recvC received
	require.NoError(t, busA.OnMessage("job-done", recvA.handler()))
	require.NoError(t, busB.OnMessage("job-done", recvB.handler()))
	require.NoError(t, busC.OnMessage("job-done", recvC.handler()))

	busA.SendToPod("p2-b", "job-done", map[string]any{"job": "42"}, types.PriorityHigh)

	require.Eventually(t, func() bool {
		return recvB.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, recvA.count(), "sender must not receive a targeted message")
	assert.Zero(t, recvC.count(), "third pods must not receive a targeted message")
}

func TestWildcardAndReplacement(t *testing.T) {
	hub := transport.NewMemoryHub()
	busA := newTestBus(t, hub, "p1-a", Options{})
	busB := newTestBus(t, hub, "p2-b", Options{})

	var wildcard, replaced, winner received
	require.NoError(t, busB.OnMessage(types.TypeWildcard, wildcard.handler()))

	// Last registration for a type wins; no chaining.
	require.NoError(t, busB.OnMessage("custom-type", replaced.handler()))
	require.NoError(t, busB.OnMessage("custom-type", winner.handler()))

	busA.Broadcast("custom-type", nil, "")
	busA.Broadcast("unknown-type", nil, "")

	require.Eventually(t, func() bool {
		return winner.count() == 1 && wildcard.count() == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, replaced.count(), "replaced handler must not run")
	assert.Equal(t, types.MessageType("unknown-type"), wildcard.first().Type)
	assert.Equal(t, types.PriorityNormal, winner.first().Priority, "empty priority defaults to normal")
}

func TestBuiltInCacheInvalidateReaction(t *testing.T) {
	hub := transport.NewMemoryHub()
	evictor := &recordingEvictor{}
	busA := newTestBus(t, hub, "p1-a", Options{})
	busB := newTestBus(t, hub, "p2-b", Options{Cache: evictor})

	// A registered handler does not suppress the built-in reaction.
	var custom received
	require.NoError(t, busB.OnMessage(types.TypeCacheInvalidate, custom.handler()))

	busA.Broadcast(types.TypeCacheInvalidate, map[string]any{
		"keys": []string{"user:1", "user:2"},
	}, types.PriorityHigh)

	require.Eventually(t, func() bool {
		return len(evictor.evicted()) == 2 && custom.count() == 1
	}, 2*time.Second, 10*time.Millisecond, "built-in reaction and custom handler must both run")

	assert.ElementsMatch(t, []string{"user:1", "user:2"}, evictor.evicted())
}

func TestBuiltInRateLimitSyncReaction(t *testing.T) {
	hub := transport.NewMemoryHub()
	limiter := &recordingLimiter{}
	busA := newTestBus(t, hub, "p1-a", Options{})
	_ = newTestBus(t, hub, "p2-b", Options{Limits: limiter})

	busA.Broadcast(types.TypeRateLimitSync, map[string]any{
		"platform": "twitter",
		"usage":    0.85,
	}, types.PriorityNormal)

	require.Eventually(t, func() bool {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		return limiter.calls == 1
	}, 2*time.Second, 10*time.Millisecond)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Equal(t, "twitter", limiter.platform)
	assert.InDelta(t, 0.85, limiter.usage, 0.0001)
}

func TestMalformedMessageDoesNotBreakDispatch(t *testing.T) {
	hub := transport.NewMemoryHub()
	raw := hub.Transport()
	busB := newTestBus(t, hub, "p2-b", Options{})

	var recv received
	require.NoError(t, busB.OnMessage(types.TypeBroadcast, recv.handler()))

	// Garbage straight onto the broadcast channel.
	require.NoError(t, raw.Publish(context.Background(), "podsync:ch:all", []byte{0xde, 0xad}))

	// A well-formed message published afterwards still gets through.
	busA := newTestBus(t, hub, "p1-a", Options{})
	busA.Broadcast(types.TypeBroadcast, nil, "")

	require.Eventually(t, func() bool {
		return recv.count() == 1
	}, 2*time.Second, 10*time.Millisecond, "subscriber loop must survive malformed frames")
}

func TestPublishWhileDisconnectedIsSilentNoOp(t *testing.T) {
	hub := transport.NewMemoryHub()
	tr := hub.Transport()
	b := NewBus(tr, testCodec(t), testBusConfig(), "p1-a", "podsync", nil, Options{})
	require.NoError(t, b.Start())
	t.Cleanup(b.Stop)

	tr.SetConnected(false)

	// Must not panic or error; the messages are simply lost.
	b.Broadcast(types.TypeBroadcast, map[string]any{"x": 1}, types.PriorityLow)
	b.SendToPod("p2-b", types.TypeBroadcast, nil, types.PriorityLow)
}

func TestOnMessageValidation(t *testing.T) {
	hub := transport.NewMemoryHub()
	b := NewBus(hub.Transport(), testCodec(t), testBusConfig(), "p1-a", "podsync", nil, Options{})

	err := b.OnMessage("", func(*types.CoordinationMessage) {})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidHandler))

	err = b.OnMessage(types.TypeBroadcast, nil)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCodeInvalidHandler))
}

func TestStopIsIdempotent(t *testing.T) {
	hub := transport.NewMemoryHub()
	b := newTestBus(t, hub, "p1-a", Options{})
	b.Stop()
	b.Stop()
}
