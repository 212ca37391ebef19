// Package coordinator is the single public surface of the multi-instance
// coordination subsystem. The cache layer, job scheduler and rate-limit
// service hold a *Coordinator handle and never touch the election, bus or
// registry internals directly.
package coordinator

import (
	"context"
	"sync"

	"github.com/meftunca/podsync/pkg/bus"
	"github.com/meftunca/podsync/pkg/common"
	"github.com/meftunca/podsync/pkg/config"
	"github.com/meftunca/podsync/pkg/election"
	"github.com/meftunca/podsync/pkg/identity"
	"github.com/meftunca/podsync/pkg/metrics"
	"github.com/meftunca/podsync/pkg/registry"
	"github.com/meftunca/podsync/pkg/serialization"
	"github.com/meftunca/podsync/pkg/transport"
	"github.com/meftunca/podsync/pkg/types"
)

// Options carries the optional collaborators wired into a Coordinator.
type Options struct {
	// Transport overrides the Redis transport built from the configuration.
	// Tests attach transports from a shared in-memory hub here.
	Transport transport.Transport
	// Cache receives built-in cache-invalidate reactions.
	Cache bus.CacheEvictor
	// Limits receives built-in rate-limit-sync reactions.
	Limits bus.RateLimitUpdater
	// Metrics, when set, is kept current by the election and bus subsystems.
	Metrics *metrics.CoordinationMetrics
	// Logger defaults to the package logger.
	Logger common.Logger
}

// Coordinator composes identity, transport, election, registry and bus. It
// is an explicitly constructed, explicitly shut down component; see Default
// for the process-wide convenience instance.
type Coordinator struct {
	cfg   *config.Config
	podID types.PodID
	log   common.Logger

	tr      transport.Transport
	elector *election.Elector
	reg     *registry.Registry
	bus     *bus.Bus
	metrics *metrics.CoordinationMetrics

	startOnce    sync.Once
	shutdownOnce sync.Once
	started      bool
}

// New builds a coordinator from the configuration. Construction never fails
// on an unreachable store: the transport starts disconnected and every
// operation degrades per its documented contract.
func New(cfg *config.Config, opts Options) (*Coordinator, error) {
	log := opts.Logger
	if log == nil {
		log = common.NewLogger("coordinator")
	}

	codec, err := serialization.NewCodec(cfg.Serialization)
	if err != nil {
		return nil, err
	}

	tr := opts.Transport
	if tr == nil {
		tr = transport.NewRedisTransport(cfg.Redis, log)
	}

	podID := identity.NewPodID(cfg.Pod.Name)
	prefix := cfg.Redis.KeyPrefix
	leaseKey := prefix + ":leader"

	c := &Coordinator{
		cfg:     cfg,
		podID:   podID,
		log:     log,
		tr:      tr,
		metrics: opts.Metrics,
		elector: election.NewElector(tr, codec, cfg.Election, podID, leaseKey, log),
		reg:     registry.NewRegistry(tr, codec, cfg.Registry, podID, prefix, log),
		bus: bus.NewBus(tr, codec, cfg.Bus, podID, prefix, log, bus.Options{
			Cache:   opts.Cache,
			Limits:  opts.Limits,
			Metrics: opts.Metrics,
		}),
	}

	if c.metrics != nil {
		c.elector.OnTransition = c.metrics.LeadershipChanged
	}

	return c, nil
}

// PodID returns this pod's process-lifetime identity.
func (c *Coordinator) PodID() types.PodID {
	return c.podID
}

// Start launches the election loop, the registry heartbeat and the bus
// subscription. Safe to call once; later calls no-op.
func (c *Coordinator) Start() error {
	var err error
	c.startOnce.Do(func() {
		if err = c.bus.Start(); err != nil {
			return
		}
		c.elector.Start()
		c.reg.Start()
		c.started = true
		c.log.Infof("coordinator started, pod %s", c.podID)
	})
	return err
}

// Broadcast publishes a message to all pods, best effort.
func (c *Coordinator) Broadcast(msgType types.MessageType, payload map[string]any, priority types.MessagePriority) {
	c.bus.Broadcast(msgType, payload, priority)
}

// SendToPod publishes a message to one pod's channel, best effort.
func (c *Coordinator) SendToPod(target types.PodID, msgType types.MessageType, payload map[string]any, priority types.MessagePriority) {
	c.bus.SendToPod(target, msgType, payload, priority)
}

// OnMessage registers the handler for a message type, replacing any earlier
// one. Errors only on invalid registration.
func (c *Coordinator) OnMessage(msgType types.MessageType, handler bus.Handler) error {
	return c.bus.OnMessage(msgType, handler)
}

// Coordinate announces that the leader decided an operation should happen.
// It only takes effect on the current leader: followers get false with no
// side effects. The announcement is a job-coordination broadcast tagged with
// the coordinator's identity; execution is left to listeners, which must be
// idempotent because a brief dual-leader window can announce twice.
func (c *Coordinator) Coordinate(op types.CoordinateOp, data map[string]any) bool {
	if !op.Valid() {
		c.log.Warnf("coordinate rejected: unknown operation %q", op)
		return false
	}
	if !c.elector.IsLeader() {
		return false
	}

	c.bus.Broadcast(types.TypeJobCoordination, map[string]any{
		"operation":   string(op),
		"data":        data,
		"coordinator": string(c.podID),
	}, types.PriorityHigh)
	return true
}

// Leader returns the current best-known lease record. Absent on any read
// failure, never an error.
func (c *Coordinator) Leader(ctx context.Context) (*types.LeaderRecord, bool) {
	return c.elector.Leader(ctx)
}

// IsLeader returns the local leadership belief. Never blocks.
func (c *Coordinator) IsLeader() bool {
	return c.elector.IsLeader()
}

// ActivePods returns the eventually-consistent liveness snapshot. Empty on
// read failure.
func (c *Coordinator) ActivePods(ctx context.Context) []types.PodID {
	pods := c.reg.ActivePods(ctx)
	if c.metrics != nil {
		c.metrics.ActivePods(len(pods))
	}
	return pods
}

// Shutdown stops, in order: the election timers, the registry heartbeat,
// the bus subscription, then both store connections. Idempotent; a failure
// in any step is logged and the remaining steps still run.
func (c *Coordinator) Shutdown() {
	c.shutdownOnce.Do(func() {
		c.elector.Stop()
		c.reg.Stop()
		c.bus.Stop()
		if err := c.tr.Close(); err != nil {
			c.log.Warnf("transport close: %v", err)
		}
		c.log.Infof("coordinator stopped, pod %s", c.podID)
	})
}
