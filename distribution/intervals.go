package distribution

import (
	"sync"
	"time"
)

// Intervals holds per job-type collect interval overrides. It can be
// replaced while distributions run, e.g. on a config reload.
type Intervals struct {
	mu        sync.RWMutex
	overrides map[string]time.Duration
}

// NewIntervals builds overrides from seconds per job-type.
func NewIntervals(seconds map[string]int) *Intervals {
	i := &Intervals{}
	i.Set(seconds)
	return i
}

// Set replaces every override. Non-positive values are ignored.
func (i *Intervals) Set(seconds map[string]int) {
	overrides := make(map[string]time.Duration, len(seconds))
	for name, s := range seconds {
		if s > 0 {
			overrides[name] = time.Duration(s) * time.Second
		}
	}
	i.mu.Lock()
	i.overrides = overrides
	i.mu.Unlock()
}

// For returns the override for name, or fallback.
func (i *Intervals) For(name string, fallback time.Duration) time.Duration {
	if i == nil {
		return fallback
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	if d, ok := i.overrides[name]; ok {
		return d
	}
	return fallback
}
