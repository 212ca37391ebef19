// Package bus carries fire-and-forget coordination messages between pods:
// a broadcast channel every pod subscribes to, plus one targeted channel per
// pod identity. Delivery is at-most-once and unordered with no backpressure;
// handlers must be idempotent and tolerant of loss and reordering.
package bus

import (
	"context"
	"sync"

	"github.com/meftunca/podsync/pkg/common"
	"github.com/meftunca/podsync/pkg/config"
	"github.com/meftunca/podsync/pkg/metrics"
	"github.com/meftunca/podsync/pkg/serialization"
	"github.com/meftunca/podsync/pkg/transport"
	"github.com/meftunca/podsync/pkg/types"
)

// Handler processes one inbound coordination message.
type Handler func(msg *types.CoordinationMessage)

// CacheEvictor is the boundary to the local cache layer. The bus only needs
// evict-by-key; how the cache is implemented is not its concern.
type CacheEvictor interface {
	Evict(key string)
}

// RateLimitUpdater is the boundary to the local rate-limit tracker.
type RateLimitUpdater interface {
	Update(platform string, usage float64)
}

// Bus encodes, routes and dispatches coordination messages. One listener
// goroutine reads the subscriber connection into a bounded queue; one
// dispatcher goroutine drains it, so slow handlers never block network I/O.
type Bus struct {
	tr        transport.Transport
	codec     serialization.Codec
	cfg       config.BusConfig
	podID     types.PodID
	keyPrefix string
	log       common.Logger
	metrics   *metrics.CoordinationMetrics

	cache  CacheEvictor
	limits RateLimitUpdater

	mu       sync.RWMutex
	handlers map[types.MessageType]Handler

	queue chan *types.CoordinationMessage

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// Options carries the optional bus collaborators.
type Options struct {
	// Cache receives the built-in cache-invalidate reaction.
	Cache CacheEvictor
	// Limits receives the built-in rate-limit-sync reaction.
	Limits RateLimitUpdater
	// Metrics, when set, is updated on publish, dispatch and drop.
	Metrics *metrics.CoordinationMetrics
}

// NewBus builds a bus publishing on "<keyPrefix>:ch:all" and subscribing to
// that channel plus "<keyPrefix>:ch:pod:<podID>".
func NewBus(tr transport.Transport, codec serialization.Codec, cfg config.BusConfig, podID types.PodID, keyPrefix string, log common.Logger, opts Options) *Bus {
	if log == nil {
		log = common.NewLogger("bus")
	}
	return &Bus{
		tr:        tr,
		codec:     codec,
		cfg:       cfg,
		podID:     podID,
		keyPrefix: keyPrefix,
		log:       log,
		metrics:   opts.Metrics,
		cache:     opts.Cache,
		limits:    opts.Limits,
		handlers:  make(map[types.MessageType]Handler),
		queue:     make(chan *types.CoordinationMessage, cfg.QueueSize),
		stopCh:    make(chan struct{}),
	}
}

func (b *Bus) broadcastChannel() string {
	return b.keyPrefix + ":ch:all"
}

func (b *Bus) podChannel(id types.PodID) string {
	return b.keyPrefix + ":ch:pod:" + string(id)
}

// Start subscribes and launches the listener and dispatcher goroutines.
func (b *Bus) Start() error {
	var err error
	b.startOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.PublishTimeout)
		defer cancel()

		var inbound <-chan transport.Inbound
		inbound, err = b.tr.Subscribe(ctx, b.broadcastChannel(), b.podChannel(b.podID))
		if err != nil {
			return
		}

		b.started = true
		b.wg.Add(2)
		go b.listen(inbound)
		go b.dispatch()
	})
	return err
}

// Stop unsubscribes best-effort and halts both goroutines. Idempotent.
func (b *Bus) Stop() {
	b.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.PublishTimeout)
		defer cancel()
		if err := b.tr.Unsubscribe(ctx); err != nil {
			b.log.Warnf("unsubscribe failed, continuing shutdown: %v", err)
		}
		close(b.stopCh)
	})
	if b.started {
		b.wg.Wait()
	}
}

// OnMessage registers the handler for a message type, replacing any earlier
// registration for that type. Register types.TypeWildcard to catch
// otherwise-unhandled types. Returns an error only for invalid registration.
func (b *Bus) OnMessage(msgType types.MessageType, handler Handler) error {
	if msgType == "" {
		return types.NewCoordError(types.ErrCodeInvalidHandler, "message type must not be empty")
	}
	if handler == nil {
		return types.NewCoordError(types.ErrCodeInvalidHandler, "handler must not be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[msgType] = handler
	return nil
}

// Broadcast publishes a message to all pods. Fire-and-forget: a disconnected
// transport or publish failure is logged, never surfaced to the caller.
func (b *Bus) Broadcast(msgType types.MessageType, payload map[string]any, priority types.MessagePriority) {
	b.publish(b.broadcastChannel(), types.NewMessage(msgType, payload, b.podID, priority))
}

// SendToPod publishes a message to a single pod's channel.
func (b *Bus) SendToPod(target types.PodID, msgType types.MessageType, payload map[string]any, priority types.MessagePriority) {
	b.publish(b.podChannel(target), types.NewMessage(msgType, payload, b.podID, priority))
}

func (b *Bus) publish(channel string, msg *types.CoordinationMessage) {
	if !b.tr.Connected() {
		b.log.Warnf("publish %s on %s skipped: store disconnected", msg.Type, channel)
		return
	}

	data, err := b.codec.Marshal(msg)
	if err != nil {
		b.log.Errorf("message encode failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.PublishTimeout)
	defer cancel()

	if err := b.tr.Publish(ctx, channel, data); err != nil {
		b.log.Warnf("publish %s on %s failed: %v", msg.Type, channel, err)
		return
	}

	if b.metrics != nil {
		b.metrics.MessagePublished(string(msg.Type), channel)
	}
}

// listen reads raw frames off the subscriber connection into the bounded
// queue. A malformed frame is dropped and logged; a full queue drops the
// newest message rather than blocking the connection.
func (b *Bus) listen(inbound <-chan transport.Inbound) {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			return
		case frame, ok := <-inbound:
			if !ok {
				return
			}

			var msg types.CoordinationMessage
			if err := b.codec.Unmarshal(frame.Payload, &msg); err != nil {
				b.log.Warnf("malformed message on %s dropped: %v", frame.Channel, err)
				if b.metrics != nil {
					b.metrics.MessageDropped("malformed")
				}
				continue
			}

			select {
			case b.queue <- &msg:
				if b.metrics != nil {
					b.metrics.QueueLength(len(b.queue))
				}
			default:
				b.log.Warnf("dispatch queue full, message %s dropped", msg.ID)
				if b.metrics != nil {
					b.metrics.MessageDropped("queue_full")
				}
			}
		}
	}
}

// dispatch drains the queue one message at a time.
func (b *Bus) dispatch() {
	defer b.wg.Done()

	for {
		select {
		case <-b.stopCh:
			return
		case msg := <-b.queue:
			if b.metrics != nil {
				b.metrics.QueueLength(len(b.queue))
			}
			b.deliver(msg)
		}
	}
}

// deliver runs the built-in reaction, if any, then the registered handler.
// Both run for the two special-cased types; the built-in reaction is not
// suppressed by a caller registration.
func (b *Bus) deliver(msg *types.CoordinationMessage) {
	switch msg.Type {
	case types.TypeCacheInvalidate:
		b.reactCacheInvalidate(msg)
	case types.TypeRateLimitSync:
		b.reactRateLimitSync(msg)
	}

	b.mu.RLock()
	handler, ok := b.handlers[msg.Type]
	if !ok {
		handler, ok = b.handlers[types.TypeWildcard]
	}
	b.mu.RUnlock()

	if ok {
		handler(msg)
	}

	if b.metrics != nil {
		b.metrics.MessageReceived(string(msg.Type))
	}
}

func (b *Bus) reactCacheInvalidate(msg *types.CoordinationMessage) {
	if b.cache == nil {
		return
	}
	for _, key := range payloadStrings(msg.Payload, "keys") {
		b.cache.Evict(key)
	}
}

func (b *Bus) reactRateLimitSync(msg *types.CoordinationMessage) {
	if b.limits == nil {
		return
	}
	platform, ok := payloadString(msg.Payload, "platform")
	if !ok {
		b.log.Warnf("rate-limit-sync %s missing platform, ignored", msg.ID)
		return
	}
	usage, ok := payloadFloat(msg.Payload, "usage")
	if !ok {
		b.log.Warnf("rate-limit-sync %s missing usage, ignored", msg.ID)
		return
	}
	b.limits.Update(platform, usage)
}
