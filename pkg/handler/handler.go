// Package handler defines the single capability a job consumer supplies:
// given a job, do the work and report success or failure.
package handler

import (
	"context"

	"github.com/samet-stack/ironforge/pkg/job"
)

// Handler performs the work for one job. Implementations must be safe to
// invoke concurrently from any worker and must not mutate the job record
// directly — all persistence is the executor's responsibility.
type Handler interface {
	Handle(ctx context.Context, j *job.Job) error
}

// Func adapts a plain function to the Handler interface, the way
// http.HandlerFunc adapts a function to http.Handler.
type Func func(ctx context.Context, j *job.Job) error

// Handle calls f.
func (f Func) Handle(ctx context.Context, j *job.Job) error {
	return f(ctx, j)
}

// Registry dispatches by job kind, for processes that handle more than
// one kind of work with a single executor.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty kind-keyed handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a job kind, overwriting any prior binding.
func (r *Registry) Register(kind string, h Handler) {
	r.handlers[kind] = h
}

// Handle dispatches to the handler registered for j.Kind. A job whose
// kind has no registered handler is treated as a handler failure so it
// flows through the normal retry/DLQ path rather than crashing a worker.
func (r *Registry) Handle(ctx context.Context, j *job.Job) error {
	h, ok := r.handlers[j.Kind]
	if !ok {
		return &UnknownKindError{Kind: j.Kind}
	}
	return h.Handle(ctx, j)
}

// UnknownKindError is returned when no handler is registered for a job's
// kind.
type UnknownKindError struct {
	Kind string
}

func (e *UnknownKindError) Error() string {
	return "handler: no handler registered for kind " + e.Kind
}
