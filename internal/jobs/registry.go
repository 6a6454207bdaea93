package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one job.
type Handler func(ctx context.Context, job *Job) error

// Registry maps (queue, job name) to a handler.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Queue]map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Queue]map[string]Handler)}
}

// Register binds name on queue to h. It panics on a nil handler or a
// duplicate name, both of which are wiring mistakes caught at startup.
func (r *Registry) Register(queue Queue, name string, h Handler) {
	if h == nil {
		panic(fmt.Sprintf("jobs: nil handler for %s/%s", queue, name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	names, ok := r.handlers[queue]
	if !ok {
		names = make(map[string]Handler)
		r.handlers[queue] = names
	}
	if _, dup := names[name]; dup {
		panic(fmt.Sprintf("jobs: handler %s/%s registered twice", queue, name))
	}
	names[name] = h
}

// Lookup returns the handler for name on queue.
func (r *Registry) Lookup(queue Queue, name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[queue][name]
	return h, ok
}

// Queues returns the queues with at least one handler, sorted.
func (r *Registry) Queues() []Queue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Queue, 0, len(r.handlers))
	for q := range r.handlers {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Names returns the job names registered on queue, sorted.
func (r *Registry) Names(queue Queue) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers[queue]))
	for n := range r.handlers[queue] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Typed adapts a handler taking a decoded payload struct. The payload map is
// converted through its JSON form, so struct fields use json tags.
func Typed[P any](fn func(ctx context.Context, payload P) error) Handler {
	return func(ctx context.Context, job *Job) error {
		var p P
		if len(job.Payload) > 0 {
			raw, err := json.Marshal(job.Payload)
			if err != nil {
				return fmt.Errorf("encode %s payload: %w", job.Name, err)
			}
			if err := json.Unmarshal(raw, &p); err != nil {
				return fmt.Errorf("decode %s payload: %w", job.Name, err)
			}
		}
		return fn(ctx, p)
	}
}

// NoPayload adapts a handler for jobs that carry no payload.
func NoPayload(fn func(ctx context.Context) error) Handler {
	return func(ctx context.Context, _ *Job) error {
		return fn(ctx)
	}
}
