package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/samet-stack/ironforge/pkg/handler"
	"github.com/samet-stack/ironforge/pkg/job"
	"github.com/samet-stack/ironforge/pkg/queue"
)

// fakeBackend is an in-memory queue.Backend for exercising the executor
// without a Redis dependency.
type fakeBackend struct {
	mu       sync.Mutex
	jobs     map[uuid.UUID]*job.Job
	pending  []uuid.UUID
	dlq      []uuid.UUID
	locks    map[uuid.UUID]bool
	dequeued chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		jobs:     make(map[uuid.UUID]*job.Job),
		locks:    make(map[uuid.UUID]bool),
		dequeued: make(chan struct{}, 64),
	}
}

func (f *fakeBackend) Enqueue(ctx context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
	for _, id := range f.pending {
		if id == j.ID {
			return nil
		}
	}
	f.pending = append(f.pending, j.ID)
	return nil
}

func (f *fakeBackend) EnqueueBatch(ctx context.Context, jobs []*job.Job) []error {
	errs := make([]error, len(jobs))
	for i, j := range jobs {
		errs[i] = f.Enqueue(ctx, j)
	}
	return errs
}

func (f *fakeBackend) Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	f.mu.Lock()
	if len(f.pending) == 0 {
		f.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(timeout):
			return nil, nil
		}
	}
	id := f.pending[0]
	f.pending = f.pending[1:]
	j := f.jobs[id]
	f.mu.Unlock()
	select {
	case f.dequeued <- struct{}{}:
	default:
	}
	return j, nil
}

func (f *fakeBackend) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, queue.ErrNotFound
	}
	return j, nil
}

func (f *fakeBackend) Update(ctx context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
	return nil
}

func (f *fakeBackend) UpdateProgress(ctx context.Context, id uuid.UUID, percent uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return queue.ErrNotFound
	}
	j.Progress = percent
	return nil
}

func (f *fakeBackend) Delete(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeBackend) MoveToDLQ(ctx context.Context, j *job.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j.Status = job.DeadLetter
	f.jobs[j.ID] = j
	f.dlq = append(f.dlq, j.ID)
	return nil
}

func (f *fakeBackend) GetStats(ctx context.Context) (queue.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return queue.Stats{QueueDepth: int64(len(f.pending)), DLQDepth: int64(len(f.dlq))}, nil
}

func (f *fakeBackend) AcquireLock(ctx context.Context, id uuid.UUID, ttl time.Duration) (queue.Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[id] {
		return nil, queue.ErrLockNotAcquired
	}
	f.locks[id] = true
	return &fakeLock{backend: f, id: id}, nil
}

func (f *fakeBackend) Ack(ctx context.Context, id uuid.UUID, token string) error { return nil }

type fakeLock struct {
	backend *fakeBackend
	id      uuid.UUID
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.backend.mu.Lock()
	defer l.backend.mu.Unlock()
	delete(l.backend.locks, l.id)
	return nil
}

// Scenario S4 / Invariant 3 — retry exhaustion moves the job to the DLQ.
func TestExecutorMovesToDLQAfterExhaustion(t *testing.T) {
	backend := newFakeBackend()
	j := job.New("always-fails", nil)
	j.MaxRetries = 1
	j.TimeoutMS = 1000
	backend.Enqueue(context.Background(), j)

	h := handler.Func(func(ctx context.Context, j *job.Job) error {
		return assertError{}
	})

	exec := New(backend, h, Config{WorkerCount: 1, DequeueTimeout: 50 * time.Millisecond}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exec.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		backend.mu.Lock()
		n := len(backend.dlq)
		backend.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("job never reached the dead letter queue")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done

	got, err := backend.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != job.DeadLetter {
		t.Fatalf("status = %s, want deadletter", got.Status)
	}
}

// Scenario S3 — a job that fails once then succeeds is retried, not DLQ'd.
func TestExecutorRetriesThenSucceeds(t *testing.T) {
	backend := newFakeBackend()
	j := job.New("flaky", nil)
	j.MaxRetries = 3
	j.TimeoutMS = 1000
	backend.Enqueue(context.Background(), j)

	var attempts int
	var mu sync.Mutex
	h := handler.Func(func(ctx context.Context, j *job.Job) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return assertError{}
		}
		return nil
	})

	exec := New(backend, h, Config{WorkerCount: 1, DequeueTimeout: 50 * time.Millisecond}, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exec.Run(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	for {
		got, err := backend.Get(context.Background(), j.ID)
		if err == nil && got.Status == job.Completed {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("job never completed")
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("attempts = %d, want 2", attempts)
	}
}

// Invariant 8 — graceful shutdown: Run returns only after ctx is cancelled
// and in-flight workers have exited.
func TestExecutorGracefulShutdown(t *testing.T) {
	backend := newFakeBackend()
	h := handler.Func(func(ctx context.Context, j *job.Job) error { return nil })
	exec := New(backend, h, Config{WorkerCount: 2, DequeueTimeout: 20 * time.Millisecond}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exec.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not shut down after context cancellation")
	}
}

// Invariant 8 / spec §5, §4.4(iii) — a handler already in flight when
// shutdown is signalled must run to completion and have its result
// persisted; cancellation may only abort a worker's next dequeue wait, not
// the job already popped off the queue.
func TestExecutorPersistsInFlightJobAcrossShutdown(t *testing.T) {
	backend := newFakeBackend()
	j := job.New("slow", nil)
	j.TimeoutMS = 2000
	backend.Enqueue(context.Background(), j)

	started := make(chan struct{})
	h := handler.Func(func(ctx context.Context, j *job.Job) error {
		close(started)
		time.Sleep(150 * time.Millisecond)
		return nil
	})

	exec := New(backend, h, Config{WorkerCount: 1, DequeueTimeout: 20 * time.Millisecond}, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		exec.Run(ctx)
		close(done)
	}()

	<-started
	cancel() // shutdown while the handler is still running

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not return after its in-flight handler finished")
	}

	got, err := backend.Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != job.Completed {
		t.Fatalf("status = %s, want completed: shutdown must not lose an in-flight job", got.Status)
	}

	backend.mu.Lock()
	held := backend.locks[j.ID]
	backend.mu.Unlock()
	if held {
		t.Fatal("lock was not released after the in-flight handler finished")
	}
}

type assertError struct{}

func (assertError) Error() string { return "handler failed" }
