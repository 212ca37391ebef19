package api

// HealthResponse reports process liveness for orchestrator probes.
type HealthResponse struct {
	Status    string  `json:"status"`
	PodID     string  `json:"pod_id"`
	IsLeader  bool    `json:"is_leader"`
	UptimeSec float64 `json:"uptime_seconds"`
}

// ClusterInfoResponse is the admin view of the coordination state.
type ClusterInfoResponse struct {
	PodID      string      `json:"pod_id"`
	IsLeader   bool        `json:"is_leader"`
	Leader     *LeaderInfo `json:"leader,omitempty"`
	ActivePods []string    `json:"active_pods"`
	PodCount   int         `json:"pod_count"`
}

// LeaderInfo is the wire form of the leadership lease.
type LeaderInfo struct {
	LeaderID      string `json:"leader_id"`
	Term          int64  `json:"term"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	Status        string `json:"status"`
}

// BroadcastRequest publishes a message to every pod.
type BroadcastRequest struct {
	Type     string         `json:"type"`
	Payload  map[string]any `json:"payload"`
	Priority string         `json:"priority"`
}

// CoordinateRequest asks the local pod to announce a cluster operation.
// Rejected unless this pod currently holds the lease.
type CoordinateRequest struct {
	Operation string         `json:"operation"`
	Data      map[string]any `json:"data"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
