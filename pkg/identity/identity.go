// Package identity derives the process-unique pod identifier every
// coordination component is keyed by.
package identity

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/meftunca/podsync/pkg/types"
)

// NewPodID combines a host label with a random suffix. The result is unique
// across concurrently-running pods with overwhelming probability and stable
// for the process lifetime; it is never persisted and regenerates on restart.
//
// The host label is taken from the first non-empty of: the explicit label
// argument, the POD_NAME environment variable, the hostname. A final
// "unknown" fallback keeps this pure computation failure-free.
func NewPodID(label string) types.PodID {
	host := hostLabel(label)
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return types.PodID(fmt.Sprintf("%s-%s", host, suffix))
}

func hostLabel(label string) string {
	if label != "" {
		return sanitize(label)
	}
	if env := os.Getenv("POD_NAME"); env != "" {
		return sanitize(env)
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return sanitize(host)
	}
	return "unknown"
}

// sanitize strips characters that would collide with the Redis key and
// channel naming scheme.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '*', '?', '[', ']', ' ':
			return '-'
		}
		return r
	}, s)
}
