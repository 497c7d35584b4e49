// Package queue implements the atomic enqueue/dequeue/lock protocol that
// sits between job producers and the executor.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/samet-stack/ironforge/pkg/job"
)

// Sentinel errors surfaced by Backend implementations. The API layer maps
// ErrNotFound to 404; the executor skips a job whose lock is held
// (ErrLockNotAcquired) and logs any other error.
var (
	// ErrNotFound is returned by Get and UpdateProgress when a job id has
	// no record in the store. Update and Delete do not return it. Dequeue
	// turns it into a nil job rather than an error, so a record deleted
	// between pop and fetch is a benign race for the executor.
	ErrNotFound = errors.New("queue: job not found")

	// ErrConflict names an illegal state transition: deleting a job that
	// is not Queued, or retrying one that is neither Failed nor
	// DeadLetter. No Backend in this package returns it; the API layer
	// checks the job's status itself and answers 409.
	ErrConflict = errors.New("queue: illegal state transition")

	// ErrLockNotAcquired is returned by AcquireLock when another worker
	// already holds the lock for the given id.
	ErrLockNotAcquired = errors.New("queue: lock not acquired")

	// ErrPoisoned is returned when a stored job record fails to
	// deserialize. The record is considered unrecoverable and is not
	// retried automatically.
	ErrPoisoned = errors.New("queue: poisoned job record")
)

// Stats summarizes the backend's current load. Readers accept eventual
// consistency: no lock is held while gathering these three counts.
type Stats struct {
	QueueDepth int64
	DLQDepth   int64
	ActiveJobs int64
}

// Lock represents a held distributed lock for one job id. It must be
// released exactly once, by the same holder that acquired it.
type Lock interface {
	// Release deletes the lock if and only if it is still held by this
	// holder. Releasing an already-released or expired lock is a no-op.
	Release(ctx context.Context) error
}

// Backend is the atomic protocol every queue implementation exposes. The
// priority-sorted Redis backend (RedisBackend) is authoritative; the
// stream-based backend (StreamBackend) is experimental and implements the
// same capability so the executor never needs to know which one it holds.
type Backend interface {
	// Enqueue persists the job record and makes it visible to Dequeue in
	// one atomic step. Re-enqueuing the same id overwrites the record
	// and score; idempotent.
	Enqueue(ctx context.Context, j *job.Job) error

	// EnqueueBatch enqueues every job, pipelined where the underlying
	// store supports it. Each element's atomicity is still
	// per-job — a pipeline failure does not roll back prior elements.
	// The returned slice has one error per input job, in order, nil on
	// success.
	EnqueueBatch(ctx context.Context, jobs []*job.Job) []error

	// Dequeue blocks up to timeout waiting for the lowest-score job.
	// Returns nil, nil on timeout. A pop that races a concurrent delete
	// of the underlying record also returns nil, nil rather than an
	// error.
	Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error)

	// Get returns the current record, or ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*job.Job, error)

	// Update overwrites the record. Callers must hold the job's lock.
	Update(ctx context.Context, j *job.Job) error

	// UpdateProgress atomically sets the progress field without
	// requiring the caller to read and rewrite the whole record.
	UpdateProgress(ctx context.Context, id uuid.UUID, percent uint8) error

	// Delete removes the record, the queue entry, and any active-set
	// membership atomically. Legal from any state at the store layer;
	// state legality (Queued-only) is enforced by the caller (API layer).
	Delete(ctx context.Context, id uuid.UUID) error

	// MoveToDLQ atomically marks the record DeadLetter and pushes the id
	// onto the dead letter list.
	MoveToDLQ(ctx context.Context, j *job.Job) error

	// GetStats returns queue/DLQ/active-job counts.
	GetStats(ctx context.Context) (Stats, error)

	// AcquireLock attempts to claim exclusive ownership of id for ttl.
	// On success it also adds id to the active-jobs set.
	AcquireLock(ctx context.Context, id uuid.UUID, ttl time.Duration) (Lock, error)

	// Ack acknowledges consumption of a job using a backend-specific
	// token. The priority backend treats this as a no-op: BZPOPMIN
	// already removed the work item. Stream backends give it real
	// semantics.
	Ack(ctx context.Context, id uuid.UUID, token string) error
}
