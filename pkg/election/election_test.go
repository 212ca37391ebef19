package election

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

const testLeaseKey = "podsync:leader"

func testElectionConfig() config.ElectionConfig {
	return config.ElectionConfig{
		HeartbeatInterval: 20 * time.Millisecond,
		ElectionTimeout:   80 * time.Millisecond,
		LeaseGrace:        20 * time.Millisecond,
		RetryBackoff:      10 * time.Millisecond,
	}
}

func testCodec(t *testing.T) serialization.Codec {
	t.Helper()
	codec, err := serialization.NewCodec(config.DefaultConfig().Serialization)
	require.NoError(t, err)
	return codec
}

func newTestElector(t *testing.T, hub *transport.MemoryHub, podID types.PodID) (*Elector, *transport.MemoryTransport) {
	tr := hub.Transport()
	e := NewElector(tr, testCodec(t), testElectionConfig(), podID, testLeaseKey, nil)
	t.Cleanup(func() {
		e.Stop()
		tr.Close()
	})
	return e, tr
}

func leaderCount(electors []*Elector) int {
	count := 0
	for _, e := range electors {
		if e.IsLeader() {
			count++
		}
	}
	return count
}

func TestSingleWinnerAmongConcurrentCandidates(t *testing.T) {
	hub := transport.NewMemoryHub()

	electors := make([]*Elector, 3)
	for i, id := range []types.PodID{"p1-a", "p2-b", "p3-c"} {
		electors[i], _ = newTestElector(t, hub, id)
	}
	for _, e := range electors {
		e.Start()
	}

	require.Eventually(t, func() bool {
		return leaderCount(electors) == 1
	}, 2*time.Second, 10*time.Millisecond, "exactly one pod should win the lease")

	// The winner holds, the losers keep following.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, leaderCount(electors))

	record, found := electors[0].Leader(context.Background())
	require.True(t, found)
	assert.Equal(t, int64(1), record.Term)
}

func TestReelectionAfterLeaderStops(t *testing.T) {
	hub := transport.NewMemoryHub()

	electors := make([]*Elector, 3)
	for i, id := range []types.PodID{"p1-a", "p2-b", "p3-c"} {
		electors[i], _ = newTestElector(t, hub, id)
	}
	for _, e := range electors {
		e.Start()
	}

	require.Eventually(t, func() bool {
		return leaderCount(electors) == 1
	}, 2*time.Second, 10*time.Millisecond)

	var survivors []*Elector
	for _, e := range electors {
		if e.IsLeader() {
			e.Stop() // leader dies; its lease goes stale
		} else {
			survivors = append(survivors, e)
		}
	}
	require.Len(t, survivors, 2)

	require.Eventually(t, func() bool {
		return leaderCount(survivors) == 1
	}, 3*time.Second, 10*time.Millisecond, "a follower should take over after staleness")

	record, found := survivors[0].Leader(context.Background())
	require.True(t, found)
	assert.Equal(t, int64(2), record.Term, "term should increment on re-election")
}

func TestSelfDemotionWhenStoreUnreachable(t *testing.T) {
	hub := transport.NewMemoryHub()
	e, tr := newTestElector(t, hub, "p1-a")
	e.Start()

	require.Eventually(t, e.IsLeader, 2*time.Second, 10*time.Millisecond)

	tr.SetConnected(false)

	require.Eventually(t, func() bool {
		return !e.IsLeader()
	}, 2*time.Second, 10*time.Millisecond, "leader must surrender when renewals cannot be confirmed")

	// Belief stays false while the store remains unreachable.
	time.Sleep(200 * time.Millisecond)
	assert.False(t, e.IsLeader())
}

func TestDemotionObservedOnRenewalWriteFailure(t *testing.T) {
	hub := transport.NewMemoryHub()
	tr := hub.Transport()

	var mu sync.Mutex
	var transitions []bool

	e := NewElector(tr, testCodec(t), testElectionConfig(), "p1-a", testLeaseKey, nil)
	e.OnTransition = func(isLeader bool, term int64) {
		mu.Lock()
		transitions = append(transitions, isLeader)
		mu.Unlock()
	}
	t.Cleanup(func() {
		e.Stop()
		tr.Close()
	})
	e.Start()

	require.Eventually(t, e.IsLeader, 2*time.Second, 10*time.Millisecond)

	tr.FailWrites(true)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, isLeader := range transitions {
			if !isLeader {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond, "a failed renewal must demote before the next action")
}

func TestLeaderReadFailureReturnsAbsent(t *testing.T) {
	hub := transport.NewMemoryHub()
	tr := hub.Transport()
	tr.SetConnected(false)

	e := NewElector(tr, testCodec(t), testElectionConfig(), "p1-a", testLeaseKey, nil)

	_, found := e.Leader(context.Background())
	assert.False(t, found)

	// Stop before Start must not hang.
	e.Stop()
}

func TestStopIsIdempotent(t *testing.T) {
	hub := transport.NewMemoryHub()
	e, _ := newTestElector(t, hub, "p1-a")
	e.Start()

	e.Stop()
	e.Stop()
}
