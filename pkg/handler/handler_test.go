package handler

import (
	"context"
	"errors"
	"testing"

	"github.com/samet-stack/ironforge/pkg/job"
)

func TestRegistryDispatchesByKind(t *testing.T) {
	r := NewRegistry()
	var called string
	r.Register("email.send", Func(func(ctx context.Context, j *job.Job) error {
		called = j.Kind
		return nil
	}))

	j := job.New("email.send", nil)
	if err := r.Handle(context.Background(), j); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if called != "email.send" {
		t.Fatalf("called = %q, want email.send", called)
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	r := NewRegistry()
	j := job.New("nonexistent", nil)

	err := r.Handle(context.Background(), j)
	var unknownErr *UnknownKindError
	if !errors.As(err, &unknownErr) {
		t.Fatalf("Handle: got %v, want *UnknownKindError", err)
	}
	if unknownErr.Kind != "nonexistent" {
		t.Fatalf("Kind = %q, want nonexistent", unknownErr.Kind)
	}
}

func TestRegistryOverwritesBinding(t *testing.T) {
	r := NewRegistry()
	r.Register("k", Func(func(ctx context.Context, j *job.Job) error { return errors.New("first") }))
	r.Register("k", Func(func(ctx context.Context, j *job.Job) error { return nil }))

	if err := r.Handle(context.Background(), job.New("k", nil)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
}
