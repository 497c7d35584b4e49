package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/samet-stack/ironforge/pkg/job"
)

// ErrNotImplemented is returned by StreamBackend.MoveToDLQ: the
// append-only design has no dead-letter structure. (GetStats does not
// return it; it returns zero counts instead.)
var ErrNotImplemented = errors.New("queue: not implemented on stream backend")

const (
	streamKey       = "queue:stream"
	streamGroup     = "ironforge-workers"
	streamIDMetaKey = "_stream_id"
)

// StreamBackend is an experimental, incomplete alternative to
// RedisBackend built on an append-only log (XADD/XREADGROUP/XACK) rather
// than a sorted-set index. It exists because the append-only model gives
// a durable consumer-group cursor instead of a destructive pop, at the
// cost of priority ordering: a stream has no notion of "lowest score
// first", so this backend delivers jobs in submission order only and
// cannot satisfy the priority dominance property RedisBackend provides.
// Its Enqueue (record write, then XADD), UpdateProgress (read, then
// write) and Delete are not atomic, and Delete removes only the job
// record: the stream entry stays, and a later Dequeue of it finds no
// record and returns nil, nil.
// Not wired into cmd/server; kept for experimentation and as a home for
// the open question about ack semantics.
type StreamBackend struct {
	client   *redis.Client
	consumer string
	logger   zerolog.Logger
}

// NewStreamBackend creates the consumer group (if absent) and returns a
// backend bound to consumer name consumer.
func NewStreamBackend(ctx context.Context, client *redis.Client, consumer string, logger zerolog.Logger) (*StreamBackend, error) {
	err := client.XGroupCreateMkStream(ctx, streamKey, streamGroup, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists; anything else is real.
		if !isBusyGroup(err) {
			return nil, fmt.Errorf("queue: create consumer group: %w", err)
		}
	}
	return &StreamBackend{client: client, consumer: consumer, logger: logger}, nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

func (b *StreamBackend) Enqueue(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", j.ID, err)
	}
	if err := b.client.Set(ctx, jobKey(j.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", j.ID, err)
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"job_id": j.ID.String()},
	}).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", j.ID, err)
	}
	return nil
}

func (b *StreamBackend) EnqueueBatch(ctx context.Context, jobs []*job.Job) []error {
	errs := make([]error, len(jobs))
	for i, j := range jobs {
		errs[i] = b.Enqueue(ctx, j)
	}
	return errs
}

// Dequeue reads the next unclaimed message for this consumer. Job
// identity arrives in the job_id field; the message's stream ID is
// stashed in the job's Metadata so a later Ack can find it. This is the
// wart flagged as an open question: the core job model has no first-class
// field for a stream cursor, so it rides along in the opaque metadata map
// instead.
func (b *StreamBackend) Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    streamGroup,
		Consumer: b.consumer,
		Streams:  []string{streamKey, ">"},
		Count:    1,
		Block:    timeout,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	if len(res) == 0 || len(res[0].Messages) == 0 {
		return nil, nil
	}
	msg := res[0].Messages[0]
	idStr, _ := msg.Values["job_id"].(string)
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: bad id %q: %w", idStr, err)
	}
	j, err := b.Get(ctx, id)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if j.Metadata == nil {
		j.Metadata = make(map[string]string)
	}
	j.Metadata[streamIDMetaKey] = msg.ID
	return j, nil
}

func (b *StreamBackend) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
	raw, err := b.client.Get(ctx, jobKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get %s: %w", id, err)
	}
	var j job.Job
	if err := json.Unmarshal(raw, &j); err != nil {
		return nil, fmt.Errorf("%w: job %s: %v", ErrPoisoned, id, err)
	}
	return &j, nil
}

func (b *StreamBackend) Update(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", j.ID, err)
	}
	return b.client.Set(ctx, jobKey(j.ID), data, 0).Err()
}

func (b *StreamBackend) UpdateProgress(ctx context.Context, id uuid.UUID, percent uint8) error {
	j, err := b.Get(ctx, id)
	if err != nil {
		return err
	}
	j.Progress = percent
	return b.Update(ctx, j)
}

func (b *StreamBackend) Delete(ctx context.Context, id uuid.UUID) error {
	return b.client.Del(ctx, jobKey(id)).Err()
}

// MoveToDLQ is unimplemented: the append-only design never defined a
// dead-letter structure, per the open question about this backend's
// incompleteness.
func (b *StreamBackend) MoveToDLQ(ctx context.Context, j *job.Job) error {
	return ErrNotImplemented
}

// GetStats returns all zeros. The stream backend never tracked queue
// depth or DLQ depth; computing them would require scanning the stream,
// which defeats the point of an append-only log.
func (b *StreamBackend) GetStats(ctx context.Context) (Stats, error) {
	return Stats{}, nil
}

func (b *StreamBackend) AcquireLock(ctx context.Context, id uuid.UUID, ttl time.Duration) (Lock, error) {
	return acquireLock(ctx, b.client, id, ttl)
}

// Ack acknowledges a message using the stream ID token produced by
// Dequeue (via Metadata[streamIDMetaKey]), removing it from the consumer
// group's pending entries list.
func (b *StreamBackend) Ack(ctx context.Context, id uuid.UUID, token string) error {
	if token == "" {
		return fmt.Errorf("queue: ack %s: missing stream id token", id)
	}
	return b.client.XAck(ctx, streamKey, streamGroup, token).Err()
}
