// Package election implements lease-based leader election over the
// coordination store. Leadership is a lease, not a lock: the store's atomic
// set-if-absent guarantees one winner per TTL window, but a stalled former
// leader may outlive its lease and briefly overlap with a newly elected one.
// Anything gated on leadership must tolerate that window; no fencing tokens
// are issued.
package election

import (
	"context"
	"sync"
	"time"

	"github.com/meftunca/podsync/pkg/common"
	"github.com/meftunca/podsync/pkg/config"
	"github.com/meftunca/podsync/pkg/serialization"
	"github.com/meftunca/podsync/pkg/transport"
	"github.com/meftunca/podsync/pkg/types"
)

type state int

const (
	stateCandidate state = iota
	stateLeader
	stateFollower
	stateStopped
)

// Elector runs the per-pod leadership state machine: Candidate while
// attempting acquisition, Leader while renewing the lease, Follower while
// monitoring someone else's lease for staleness. All shared state is
// serialized behind one mutex and one run goroutine, so a staleness check
// can never race a concurrent renewal from the same pod.
type Elector struct {
	tr       transport.Transport
	codec    serialization.Codec
	cfg      config.ElectionConfig
	podID    types.PodID
	leaseKey string
	log      common.Logger

	// OnTransition, when set before Start, is invoked from the election
	// goroutine after every promotion or demotion.
	OnTransition func(isLeader bool, term int64)

	mu       sync.Mutex
	isLeader bool
	observed *types.LeaderRecord
	term     int64

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewElector builds an elector for the given pod. leaseKey is the single
// shared leadership key, typically "<prefix>:leader".
func NewElector(tr transport.Transport, codec serialization.Codec, cfg config.ElectionConfig, podID types.PodID, leaseKey string, log common.Logger) *Elector {
	if log == nil {
		log = common.NewLogger("election")
	}
	return &Elector{
		tr:       tr,
		codec:    codec,
		cfg:      cfg,
		podID:    podID,
		leaseKey: leaseKey,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the election loop. Safe to call once; later calls no-op.
func (e *Elector) Start() {
	e.startOnce.Do(func() {
		e.started = true
		go e.run()
	})
}

// Stop halts the election loop and waits for it to exit. Idempotent. The
// lease is not deleted; it lapses via TTL so followers re-elect within the
// documented bound.
func (e *Elector) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})
	if e.started {
		<-e.doneCh
	}
}

// IsLeader returns this pod's local belief, refreshed by the state machine.
// Never blocks on the network.
func (e *Elector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

// Term returns the term of the lease this pod last held or observed.
func (e *Elector) Term() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.term
}

// Leader reads the current lease record from the store. Absent on any read
// failure, never an error.
func (e *Elector) Leader(ctx context.Context) (*types.LeaderRecord, bool) {
	data, found, err := e.tr.Get(ctx, e.leaseKey)
	if err != nil || !found {
		return nil, false
	}

	var record types.LeaderRecord
	if err := e.codec.Unmarshal(data, &record); err != nil {
		e.log.Warnf("malformed lease record dropped: %v", err)
		return nil, false
	}
	return &record, true
}

func (e *Elector) run() {
	defer close(e.doneCh)
	defer func() {
		e.mu.Lock()
		e.isLeader = false
		e.mu.Unlock()
	}()

	st := stateCandidate
	for st != stateStopped {
		select {
		case <-e.stopCh:
			return
		default:
		}

		switch st {
		case stateCandidate:
			st = e.campaign()
		case stateLeader:
			st = e.lead()
		case stateFollower:
			st = e.follow()
		}
	}
}

// campaign attempts one lease acquisition and returns the resulting state.
func (e *Elector) campaign() state {
	ctx, cancel := e.opCtx()
	defer cancel()

	prev, found := e.Leader(ctx)
	if found && prev.Status(e.cfg.ElectionTimeout) == types.LeaderActive {
		if prev.LeaderID == e.podID {
			// Our own still-active lease, seen again after a reconnect.
			e.promote(prev.Term)
			return stateLeader
		}
		e.observe(prev)
		return stateFollower
	}

	// A stale record lingers until its grace TTL lapses in the store; the
	// set-if-absent below simply fails until then. Acquisition is never a
	// delete-and-set, so two racing candidates cannot both win.
	prevTerm := e.Term()
	if found {
		prevTerm = prev.Term
	}

	record := &types.LeaderRecord{
		LeaderID:      e.podID,
		Term:          prevTerm + 1,
		LastHeartbeat: time.Now().UnixNano(),
	}

	data, err := e.codec.Marshal(record)
	if err != nil {
		e.log.Errorf("lease record encode failed: %v", err)
		return e.backoff()
	}

	won, err := e.tr.SetNX(ctx, e.leaseKey, data, e.cfg.LeaseTTL())
	if err != nil {
		e.log.Warnf("lease acquisition failed: %v", err)
		return e.backoff()
	}

	if won {
		e.log.Infof("pod %s acquired leadership, term %d", e.podID, record.Term)
		e.setObserved(record)
		e.promote(record.Term)
		return stateLeader
	}

	// Lost the race; learn who won.
	current, found := e.Leader(ctx)
	if !found {
		return e.backoff()
	}
	if current.LeaderID == e.podID {
		e.promote(current.Term)
		return stateLeader
	}
	e.observe(current)
	return stateFollower
}

// lead renews the lease every heartbeat interval. An independent expiry
// timer, reset only by confirmed renewals, forces surrender when writes stop
// landing: a leader must never keep believing in an unconfirmed lease.
func (e *Elector) lead() state {
	heartbeat := time.NewTicker(e.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	expiry := time.NewTimer(e.cfg.ElectionTimeout)
	defer expiry.Stop()

	for {
		select {
		case <-e.stopCh:
			return stateStopped

		case <-heartbeat.C:
			if err := e.renew(); err != nil {
				e.demote("lease renewal failed: " + err.Error())
				return e.backoff()
			}
			if !expiry.Stop() {
				select {
				case <-expiry.C:
				default:
				}
			}
			expiry.Reset(e.cfg.ElectionTimeout)

		case <-expiry.C:
			e.demote("no confirmed renewal within election timeout")
			return stateCandidate
		}
	}
}

func (e *Elector) renew() error {
	if !e.tr.Connected() {
		return types.ErrDisconnected("renew")
	}

	record := &types.LeaderRecord{
		LeaderID:      e.podID,
		Term:          e.Term(),
		LastHeartbeat: time.Now().UnixNano(),
	}

	data, err := e.codec.Marshal(record)
	if err != nil {
		return err
	}

	ctx, cancel := e.opCtx()
	defer cancel()

	if err := e.tr.Set(ctx, e.leaseKey, data, e.cfg.LeaseTTL()); err != nil {
		return err
	}
	e.setObserved(record)
	return nil
}

// follow polls the shared lease for staleness. A missing or stale record
// triggers a new campaign; the store's atomicity settles the resulting race
// between followers.
func (e *Elector) follow() state {
	poll := time.NewTicker(e.cfg.HeartbeatInterval)
	defer poll.Stop()

	for {
		select {
		case <-e.stopCh:
			return stateStopped

		case <-poll.C:
			ctx, cancel := e.opCtx()
			record, found := e.Leader(ctx)
			cancel()

			if !found {
				e.log.Infof("lease absent, entering election")
				return stateCandidate
			}

			e.observe(record)

			if record.Status(e.cfg.ElectionTimeout) == types.LeaderExpired {
				e.log.Infof("leader %s stale, entering election", record.LeaderID)
				return stateCandidate
			}
		}
	}
}

// backoff sleeps before the next campaign so a flapping store is not hammered.
func (e *Elector) backoff() state {
	select {
	case <-e.stopCh:
		return stateStopped
	case <-time.After(e.cfg.RetryBackoff):
		return stateCandidate
	}
}

func (e *Elector) promote(term int64) {
	e.mu.Lock()
	changed := !e.isLeader
	e.isLeader = true
	e.term = term
	e.mu.Unlock()

	if changed && e.OnTransition != nil {
		e.OnTransition(true, term)
	}
}

func (e *Elector) demote(reason string) {
	e.mu.Lock()
	changed := e.isLeader
	e.isLeader = false
	term := e.term
	e.mu.Unlock()

	if changed {
		e.log.Warnf("pod %s surrendered leadership: %s", e.podID, reason)
		if e.OnTransition != nil {
			e.OnTransition(false, term)
		}
	}
}

// observe records someone else's lease and clears local leadership belief.
func (e *Elector) observe(record *types.LeaderRecord) {
	e.mu.Lock()
	e.observed = record
	e.term = record.Term
	wasLeader := e.isLeader
	e.isLeader = record.LeaderID == e.podID
	isLeader := e.isLeader
	e.mu.Unlock()

	if wasLeader != isLeader && e.OnTransition != nil {
		e.OnTransition(isLeader, record.Term)
	}
}

func (e *Elector) setObserved(record *types.LeaderRecord) {
	e.mu.Lock()
	e.observed = record
	e.mu.Unlock()
}

func (e *Elector) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.HeartbeatInterval)
}
