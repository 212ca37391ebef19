package coordinator

import "sync"

var (
	defaultMu sync.RWMutex
	defaultC  *Coordinator
)

// SetDefault installs the process-wide coordinator returned by Default.
// Call it once at startup after New; passing nil clears it.
func SetDefault(c *Coordinator) {
	defaultMu.Lock()
	defaultC = c
	defaultMu.Unlock()
}

// Default returns the process-wide coordinator, or nil before SetDefault.
// It is a convenience for call sites that cannot carry a handle; prefer
// passing the *Coordinator explicitly.
func Default() *Coordinator {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultC
}
