package types

import (
	"time"

	"github.com/google/uuid"
)

// PodID identifies one running replica participating in coordination.
type PodID string

// MessageType identifies the kind of coordination message.
type MessageType string

// Built-in message types. Application code may register handlers for
// arbitrary additional types; these four get first-class constants because
// the bus special-cases or emits them itself.
const (
	TypeCacheInvalidate MessageType = "cache-invalidate"
	TypeJobCoordination MessageType = "job-coordination"
	TypeRateLimitSync   MessageType = "rate-limit-sync"
	TypeBroadcast       MessageType = "broadcast"

	// TypeWildcard registers a catch-all handler for otherwise-unhandled types.
	TypeWildcard MessageType = "*"
)

// MessagePriority is advisory only. The transport provides no priority
// queuing; consumers may use it to decide how urgently to react.
type MessagePriority string

const (
	PriorityLow    MessagePriority = "low"
	PriorityNormal MessagePriority = "normal"
	PriorityHigh   MessagePriority = "high"
)

// CoordinationMessage is the wire envelope exchanged between pods.
// Delivery is at-most-once and unordered; the ID is unique per instance and
// exists only so consumers can trace or dedup, the bus itself never dedups.
type CoordinationMessage struct {
	ID        string          `cbor:"i" json:"id" msgpack:"i"`
	Type      MessageType     `cbor:"t" json:"type" msgpack:"t"`
	Payload   map[string]any  `cbor:"p,omitempty" json:"payload,omitempty" msgpack:"p,omitempty"`
	Timestamp int64           `cbor:"ts" json:"timestamp" msgpack:"ts"` // Unix nanoseconds, sender clock
	SourcePod PodID           `cbor:"s" json:"source_pod" msgpack:"s"`
	Priority  MessagePriority `cbor:"pr,omitempty" json:"priority,omitempty" msgpack:"pr,omitempty"`
}

// NewMessage creates a CoordinationMessage with a fresh ID and timestamp.
func NewMessage(msgType MessageType, payload map[string]any, source PodID, priority MessagePriority) *CoordinationMessage {
	if priority == "" {
		priority = PriorityNormal
	}
	return &CoordinationMessage{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UnixNano(),
		SourcePod: source,
		Priority:  priority,
	}
}

// Age returns how long ago the message was created, by the sender's clock.
func (m *CoordinationMessage) Age() time.Duration {
	return time.Since(time.Unix(0, m.Timestamp))
}

// LeaderStatus reflects a reader's interpretation of the shared lease.
type LeaderStatus string

const (
	LeaderActive  LeaderStatus = "active"
	LeaderExpired LeaderStatus = "expired"
)

// LeaderRecord is the single shared leadership lease. It is mutated only by
// the pod currently holding it; any pod may read it. Status is inferred at
// read time from LastHeartbeat age, never persisted reliably.
type LeaderRecord struct {
	LeaderID      PodID `cbor:"l" json:"leader_id" msgpack:"l"`
	Term          int64 `cbor:"tm" json:"term" msgpack:"tm"`
	LastHeartbeat int64 `cbor:"hb" json:"last_heartbeat" msgpack:"hb"` // Unix nanoseconds
}

// Status classifies the record against the supplied election timeout.
func (r *LeaderRecord) Status(electionTimeout time.Duration) LeaderStatus {
	if time.Since(time.Unix(0, r.LastHeartbeat)) > electionTimeout {
		return LeaderExpired
	}
	return LeaderActive
}

// PodHeartbeat is one pod's periodic liveness announcement. Used only for
// enumeration, never for leadership decisions.
type PodHeartbeat struct {
	PodID     PodID `cbor:"p" json:"pod_id" msgpack:"p"`
	Timestamp int64 `cbor:"ts" json:"timestamp" msgpack:"ts"` // Unix nanoseconds
}

// Stale reports whether the heartbeat is older than threshold.
func (h *PodHeartbeat) Stale(threshold time.Duration) bool {
	return time.Since(time.Unix(0, h.Timestamp)) > threshold
}

// CoordinateOp is one of the closed set of leader-announced operations.
type CoordinateOp string

const (
	OpCacheWarmup  CoordinateOp = "cache-warmup"
	OpJobRebalance CoordinateOp = "job-rebalance"
	OpCleanup      CoordinateOp = "cleanup"
)

// Valid reports whether op is one of the known coordinate operations.
func (op CoordinateOp) Valid() bool {
	switch op {
	case OpCacheWarmup, OpJobRebalance, OpCleanup:
		return true
	}
	return false
}
