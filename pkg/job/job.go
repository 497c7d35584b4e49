// Package job defines the IronForge job record: the single persistent
// entity the queue engine and executor operate on.
package job

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority is one of four discrete urgency bands. It is the primary
// dispatch key; see Score.
type Priority string

const (
	Critical Priority = "critical"
	High     Priority = "high"
	Medium   Priority = "medium"
	Low      Priority = "low"
)

// tierScore returns the base score for a priority tier. Smaller is more
// urgent. Tiers are spaced 1000 apart so that the sub-tier jitter added in
// Score can never cross a tier boundary.
func (p Priority) tierScore() int64 {
	switch p {
	case Critical:
		return 0
	case High:
		return 1000
	case Medium:
		return 2000
	case Low:
		return 3000
	default:
		return 2000 // unknown priorities behave like Medium
	}
}

// Valid reports whether p is one of the four known tiers.
func (p Priority) Valid() bool {
	switch p {
	case Critical, High, Medium, Low:
		return true
	}
	return false
}

// Status is the job's position in the state machine described in the
// executor's documentation. DeadLetter and Completed are terminal.
type Status string

const (
	Queued     Status = "queued"
	Running    Status = "running"
	Completed  Status = "completed"
	Failed     Status = "failed"
	DeadLetter Status = "deadletter"
)

const (
	// DefaultMaxRetries is applied to jobs that don't specify one.
	DefaultMaxRetries = 3
	// DefaultTimeoutMS is applied to jobs that don't specify one.
	DefaultTimeoutMS = 30_000

	backoffBaseMS = 1000
	backoffCapMS  = 300_000
)

// Job is the sole persistent entity in IronForge. Its id is immutable once
// constructed; every other field is mutated under the backend's distributed
// lock by at most one worker at a time.
type Job struct {
	ID           uuid.UUID         `json:"id"`
	Kind         string            `json:"kind"`
	Payload      json.RawMessage   `json:"payload"`
	Priority     Priority          `json:"priority"`
	Status       Status            `json:"status"`
	MaxRetries   uint8             `json:"max_retries"`
	RetryCount   uint8             `json:"retry_count"`
	Progress     uint8             `json:"progress"`
	CreatedAt    time.Time         `json:"created_at"`
	ScheduledFor *time.Time        `json:"scheduled_for,omitempty"`
	TimeoutMS    uint64            `json:"timeout_ms"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// New constructs a job in the Queued state with default retry/timeout
// policy. Callers override Priority, MaxRetries, TimeoutMS, and Metadata
// before the first Enqueue.
func New(kind string, payload json.RawMessage) *Job {
	return &Job{
		ID:         uuid.New(),
		Kind:       kind,
		Payload:    payload,
		Priority:   Medium,
		Status:     Queued,
		MaxRetries: DefaultMaxRetries,
		Progress:   0,
		CreatedAt:  time.Now().UTC(),
		TimeoutMS:  DefaultTimeoutMS,
		Metadata:   make(map[string]string),
	}
}

// BackoffDelay returns the exponential backoff delay to wait before the
// next retry, given the job's current RetryCount (already incremented for
// the attempt that just failed). base=1s, cap=5min.
func (j *Job) BackoffDelay() time.Duration {
	delayMS := uint64(backoffBaseMS) << j.RetryCount
	if j.RetryCount >= 63 || delayMS > backoffCapMS {
		delayMS = backoffCapMS
	}
	return time.Duration(delayMS) * time.Millisecond
}

// Score computes the 64-bit ordering key used by the priority queue's
// sorted index: tier base plus a sub-tier jitter derived from the
// millisecond component of CreatedAt. Smaller sorts first (more urgent).
// The jitter is strictly less than the 1000-wide tier gap, so it can never
// make a lower-priority job outrank a higher-priority one.
func (j *Job) Score() int64 {
	jitter := j.CreatedAt.UnixMilli() % 1000
	if jitter < 0 {
		jitter += 1000
	}
	return j.Priority.tierScore() + jitter
}

// Exhausted reports whether the job has used up its retry budget:
// RetryCount has reached MaxRetries. This is the condition the executor
// checks after incrementing RetryCount for a failed attempt, so a job is
// moved to the dead letter queue on the failure that makes it true.
func (j *Job) Exhausted() bool {
	return j.RetryCount >= j.MaxRetries
}

// LockTTL returns the distributed lock TTL for this job's attempt: the
// handler timeout plus a 10 second grace window, per the spec's "+10s"
// safety margin beyond the handler deadline.
func (j *Job) LockTTL() time.Duration {
	return time.Duration(j.TimeoutMS)*time.Millisecond + 10*time.Second
}
