package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySetNXIsExclusive(t *testing.T) {
	hub := NewMemoryHub()
	a := hub.Transport()
	b := hub.Transport()
	ctx := context.Background()

	okA, err := a.SetNX(ctx, "lock", []byte("a"), time.Minute)
	require.NoError(t, err)
	okB, err := b.SetNX(ctx, "lock", []byte("b"), time.Minute)
	require.NoError(t, err)

	assert.True(t, okA)
	assert.False(t, okB)

	value, found, err := b.Get(ctx, "lock")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("a"), value)
}

func TestMemoryTTLExpiry(t *testing.T) {
	hub := NewMemoryHub()
	tr := hub.Transport()
	ctx := context.Background()

	_, err := tr.SetNX(ctx, "lock", []byte("x"), 20*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, found, err := tr.Get(ctx, "lock")
	require.NoError(t, err)
	assert.False(t, found, "expired key should be absent")

	// A second acquisition succeeds once the first lease lapsed.
	ok, err := tr.SetNX(ctx, "lock", []byte("y"), time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryScanFiltersPattern(t *testing.T) {
	hub := NewMemoryHub()
	tr := hub.Transport()
	ctx := context.Background()

	require.NoError(t, tr.Set(ctx, "podsync:pod:a", []byte("1"), 0))
	require.NoError(t, tr.Set(ctx, "podsync:pod:b", []byte("2"), 0))
	require.NoError(t, tr.Set(ctx, "podsync:leader", []byte("3"), 0))

	keys, err := tr.Scan(ctx, "podsync:pod:*", 100)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"podsync:pod:a", "podsync:pod:b"}, keys)
}

func TestMemoryPubSubFanOut(t *testing.T) {
	hub := NewMemoryHub()
	pub := hub.Transport()
	subA := hub.Transport()
	subB := hub.Transport()
	ctx := context.Background()

	chA, err := subA.Subscribe(ctx, "all")
	require.NoError(t, err)
	chB, err := subB.Subscribe(ctx, "all", "pod:b")
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, "all", []byte("everyone")))
	require.NoError(t, pub.Publish(ctx, "pod:b", []byte("only-b")))

	msgA := <-chA
	assert.Equal(t, "all", msgA.Channel)

	msgB1 := <-chB
	msgB2 := <-chB
	assert.ElementsMatch(t,
		[]string{"all", "pod:b"},
		[]string{msgB1.Channel, msgB2.Channel})

	select {
	case extra := <-chA:
		t.Fatalf("subscriber A received message for another pod: %s", extra.Channel)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryDisconnectedOpsAreNoOps(t *testing.T) {
	hub := NewMemoryHub()
	tr := hub.Transport()
	tr.SetConnected(false)
	ctx := context.Background()

	ok, err := tr.SetNX(ctx, "lock", []byte("x"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := tr.Get(ctx, "lock")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, tr.Publish(ctx, "all", []byte("lost")))

	keys, err := tr.Scan(ctx, "*", 100)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryCloseIsIdempotent(t *testing.T) {
	hub := NewMemoryHub()
	tr := hub.Transport()

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
}
