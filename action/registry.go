package action

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/nuvla/job-engine-sub001/logger"
)

// Registry maps action names to constructors. It is filled once at process
// start and read concurrently by workers afterwards.
type Registry struct {
	constructors map[string]Constructor
	mu           sync.RWMutex
	logger       *zap.SugaredLogger
}

// NewRegistry builds a registry from a static list. Duplicates are handled as
// by Register.
func NewRegistry(logger *zap.SugaredLogger, regs ...Registration) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	r := &Registry{
		constructors: make(map[string]Constructor, len(regs)),
		logger:       logger,
	}
	for _, reg := range regs {
		r.Register(reg.Name, reg.New)
	}
	return r
}

// Register adds a constructor. The first registration of a name wins; a later
// one is logged and ignored. Returns whether ctor was registered.
func (r *Registry) Register(name string, ctor Constructor) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" || ctor == nil {
		r.logger.Warnw("Ignoring invalid action registration", logger.FieldAction, name)
		return false
	}
	if _, exists := r.constructors[name]; exists {
		r.logger.Warnw("Action already registered, keeping the first", logger.FieldAction, name)
		return false
	}
	r.constructors[name] = ctor
	return true
}

// Lookup returns the constructor for name.
func (r *Registry) Lookup(name string) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.constructors[name]
	return ctor, ok
}

// Names returns the registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.constructors))
	for name := range r.constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
