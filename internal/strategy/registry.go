package strategy

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/newthinker/quantsweep/internal/core"
)

// Registry maps strategy names to factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	logger  *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Registry{
		entries: make(map[string]Registration),
		logger:  l,
	}
}

// Register adds a strategy. Names must be unique.
func (r *Registry) Register(reg Registration) error {
	if reg.Name == "" || reg.Factory == nil {
		return core.Errorf(core.ErrInvalidParameter, "registration needs a name and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[reg.Name]; exists {
		return core.Errorf(core.ErrInvalidParameter, "strategy %q already registered", reg.Name)
	}
	r.entries[reg.Name] = reg
	r.logger.Debug("strategy registered", zap.String("strategy", reg.Name))
	return nil
}

// Get retrieves a registration by name
func (r *Registry) Get(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[name]
	return reg, ok
}

// List returns all registrations sorted by name.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		result = append(result, reg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// New builds a fresh generator. params override the registered defaults;
// a key the strategy does not declare is rejected.
func (r *Registry) New(name string, params Params) (SignalGenerator, error) {
	reg, ok := r.Get(name)
	if !ok {
		return nil, core.Errorf(core.ErrUnknownStrategy, "%q", name)
	}

	for key := range params {
		if _, known := reg.Defaults[key]; !known {
			return nil, core.Errorf(core.ErrInvalidParameter, "%s does not accept %q", name, key)
		}
	}

	gen, err := reg.Factory(reg.Defaults.Merge(params))
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidParameter, err)
	}
	return gen, nil
}
