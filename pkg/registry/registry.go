// Package registry maintains per-pod liveness records and answers "which
// pods are currently alive?" from them. The answer is a point-in-time,
// eventually-consistent snapshot: a pod that just started may be missing and
// a pod that just died may linger until its record expires.
package registry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/meftunca/podsync/pkg/common"
	"github.com/meftunca/podsync/pkg/config"
	"github.com/meftunca/podsync/pkg/serialization"
	"github.com/meftunca/podsync/pkg/transport"
	"github.com/meftunca/podsync/pkg/types"
)

// Registry writes this pod's heartbeat on a fixed interval and enumerates
// live pods by scanning the heartbeat key space.
type Registry struct {
	tr        transport.Transport
	codec     serialization.Codec
	cfg       config.RegistryConfig
	podID     types.PodID
	keyPrefix string
	log       common.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewRegistry builds a registry writing under "<keyPrefix>:pod:<podID>".
func NewRegistry(tr transport.Transport, codec serialization.Codec, cfg config.RegistryConfig, podID types.PodID, keyPrefix string, log common.Logger) *Registry {
	if log == nil {
		log = common.NewLogger("registry")
	}
	return &Registry{
		tr:        tr,
		codec:     codec,
		cfg:       cfg,
		podID:     podID,
		keyPrefix: keyPrefix,
		log:       log,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

func (r *Registry) podKey(id types.PodID) string {
	return r.keyPrefix + ":pod:" + string(id)
}

func (r *Registry) scanPattern() string {
	return r.keyPrefix + ":pod:*"
}

// Start launches the heartbeat loop. The first heartbeat is written
// immediately so the pod becomes visible without waiting one interval.
func (r *Registry) Start() {
	r.startOnce.Do(func() {
		r.started = true
		go r.run()
	})
}

// Stop halts the heartbeat loop. Idempotent. The heartbeat record is left to
// expire via TTL.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	if r.started {
		<-r.doneCh
	}
}

func (r *Registry) run() {
	defer close(r.doneCh)

	r.writeHeartbeat()

	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.writeHeartbeat()
		}
	}
}

func (r *Registry) writeHeartbeat() {
	hb := &types.PodHeartbeat{
		PodID:     r.podID,
		Timestamp: time.Now().UnixNano(),
	}

	data, err := r.codec.Marshal(hb)
	if err != nil {
		r.log.Errorf("heartbeat encode failed: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.HeartbeatInterval)
	defer cancel()

	if err := r.tr.Set(ctx, r.podKey(r.podID), data, r.cfg.HeartbeatTTL()); err != nil {
		r.log.Warnf("heartbeat write failed: %v", err)
	}
}

// ActivePods scans heartbeat keys and returns the deduplicated identities
// whose records pass the staleness filter. The age filter defends against a
// store that expires keys lazily and against scan results read mid-expiry.
// Returns an empty slice on any read failure.
func (r *Registry) ActivePods(ctx context.Context) []types.PodID {
	keys, err := r.tr.Scan(ctx, r.scanPattern(), r.cfg.ScanCount)
	if err != nil {
		r.log.Warnf("heartbeat scan failed: %v", err)
		return nil
	}

	seen := make(map[types.PodID]bool, len(keys))
	pods := make([]types.PodID, 0, len(keys))

	for _, key := range keys {
		data, found, err := r.tr.Get(ctx, key)
		if err != nil || !found {
			continue
		}

		var hb types.PodHeartbeat
		if err := r.codec.Unmarshal(data, &hb); err != nil {
			r.log.Warnf("malformed heartbeat %s dropped: %v", key, err)
			continue
		}

		if hb.Stale(r.cfg.StalenessThreshold) {
			continue
		}

		// The key suffix is authoritative for identity; fall back to it when
		// the record body disagrees or is empty.
		id := hb.PodID
		if id == "" {
			id = types.PodID(strings.TrimPrefix(key, r.keyPrefix+":pod:"))
		}

		if seen[id] {
			continue
		}
		seen[id] = true
		pods = append(pods, id)
	}

	return pods
}
