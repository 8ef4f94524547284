package engine

import (
	"fmt"
	"sync"

	"github.com/msbolton/conduit/pkg/api"
)

// registration holds one saga type plus the type-level artifacts captured by
// running Init once on a throwaway instance: the handled-type set and the
// correlation rules. Per-dispatch instances re-run Init so handler closures
// bind to the instance handling the message.
type registration struct {
	def api.SagaDefinition
	cfg *api.Config
}

type sagaRegistry struct {
	mu     sync.RWMutex
	byName map[string]*registration
}

func newSagaRegistry() *sagaRegistry {
	return &sagaRegistry{
		byName: make(map[string]*registration),
	}
}

func (r *sagaRegistry) register(def api.SagaDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: name is required", api.ErrInvalidDefinition)
	}
	if def.New == nil || def.NewRecord == nil {
		return fmt.Errorf("%w: %q needs both a saga factory and a record factory", api.ErrInvalidDefinition, def.Name)
	}

	probe := def.New()
	if probe == nil {
		return fmt.Errorf("%w: %q saga factory returned nil", api.ErrInvalidDefinition, def.Name)
	}
	if def.NewRecord() == nil {
		return fmt.Errorf("%w: %q record factory returned nil", api.ErrInvalidDefinition, def.Name)
	}

	cfg := api.NewConfig()
	probe.Init(cfg)
	if err := cfg.Err(); err != nil {
		return fmt.Errorf("%w: %q: %v", api.ErrInvalidDefinition, def.Name, err)
	}
	if !cfg.HasHandlers() {
		return fmt.Errorf("%w: %q declares no message handlers", api.ErrInvalidDefinition, def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[def.Name]; exists {
		return fmt.Errorf("%w: %q already registered", api.ErrInvalidDefinition, def.Name)
	}
	r.byName[def.Name] = &registration{def: def, cfg: cfg}
	return nil
}

func (r *sagaRegistry) get(name string) (*registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrSagaNotRegistered, name)
	}
	return reg, nil
}
