package engine

import (
	"fmt"
	"sort"

	"github.com/GraphResearcher/AutoData/sdk/worker"
	"github.com/GraphResearcher/AutoData/types"
)

// Registry maps each task type to exactly one worker. It is built once at
// startup and read-only afterwards.
type Registry struct {
	handlers map[types.TaskType]worker.Handler
}

// NewRegistry registers the given handlers
func NewRegistry(handlers ...worker.Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[types.TaskType]worker.Handler, len(handlers))}
	for _, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: nil handler", ErrInvalidWorker)
		}
		t := h.GetTaskType()
		if t == "" {
			return nil, fmt.Errorf("%w: empty task type", ErrInvalidWorker)
		}
		if _, exists := r.handlers[t]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateWorker, t)
		}
		r.handlers[t] = h
	}
	return r, nil
}

// Lookup returns the worker registered for a task type
func (r *Registry) Lookup(t types.TaskType) (worker.Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Types returns the registered task types in sorted order
func (r *Registry) Types() []types.TaskType {
	out := make([]types.TaskType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
