package backend

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownModel is returned when a model name is not registered.
var ErrUnknownModel = errors.New("unknown model")

// ModelInfo pairs a model name with its description.
type ModelInfo struct {
	Name        string      `json:"name"`
	Description Description `json:"description"`
}

// Registry holds named models for the CLI and API.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates an empty model registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]Model),
	}
}

// Register adds a model to the registry under the given name, replacing any
// model previously registered under it.
func (r *Registry) Register(name string, m Model) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[name] = m
}

// Resolve returns the model registered under name.
func (r *Registry) Resolve(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	return m, nil
}

// List returns information about all registered models, sorted by name
// for a stable API response.
func (r *Registry) List() []ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ModelInfo, 0, len(r.models))
	for name, m := range r.models {
		info := ModelInfo{Name: name, Description: Description{Kind: "func"}}
		if d, ok := m.(Describer); ok {
			info.Description = d.Describe()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
