package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/samet-stack/ironforge/pkg/job"
)

const (
	queueMainKey  = "queue:main"
	queueDLQKey   = "queue:dlq"
	activeJobsKey = "active:jobs"
)

func jobKey(id uuid.UUID) string  { return "jobs:" + id.String() }
func lockKey(id uuid.UUID) string { return "lock:" + id.String() }

// enqueueScript persists the job record and inserts it into the priority
// index in one round trip, so no concurrent dequeuer can ever observe a
// record without a queue entry or vice versa.
var enqueueScript = redis.NewScript(`
redis.call("set", KEYS[1], ARGV[1])
redis.call("zadd", KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// deleteScript removes a job's record, queue entry, and active-set
// membership atomically. Legal to call regardless of the job's current
// status; status legality is enforced by the API layer before this runs.
var deleteScript = redis.NewScript(`
redis.call("del", KEYS[1])
redis.call("zrem", KEYS[2], ARGV[1])
redis.call("srem", KEYS[3], ARGV[1])
return 1
`)

// moveToDLQScript writes the already-mutated (status=DeadLetter) record
// and pushes the id onto the DLQ list in one step.
var moveToDLQScript = redis.NewScript(`
redis.call("set", KEYS[1], ARGV[1])
redis.call("lpush", KEYS[2], ARGV[2])
return 1
`)

// updateProgressScript mutates only the progress field of a stored
// record without requiring the caller to read-modify-write the whole
// document, and without a window where a concurrent reader sees a torn
// write.
var updateProgressScript = redis.NewScript(`
local raw = redis.call("get", KEYS[1])
if raw == false then
	return 0
end
local doc = cjson.decode(raw)
doc["progress"] = tonumber(ARGV[1])
redis.call("set", KEYS[1], cjson.encode(doc))
return 1
`)

// RedisBackend is the priority-sorted Backend: a single authoritative
// sorted-set index dispatched by blocking pop-minimum, per the ordering
// discipline that forbids per-tier queues polled in order.
type RedisBackend struct {
	client   *redis.Client
	logger   zerolog.Logger
	alerters []Alerter
}

// NewRedisBackend constructs a RedisBackend and pre-loads its Lua scripts
// so that later Run calls reference them by SHA digest rather than
// shipping source on every call.
func NewRedisBackend(ctx context.Context, client *redis.Client, logger zerolog.Logger, alerters ...Alerter) (*RedisBackend, error) {
	for _, s := range []*redis.Script{enqueueScript, deleteScript, moveToDLQScript, updateProgressScript, releaseScript} {
		if err := s.Load(ctx, client).Err(); err != nil {
			return nil, fmt.Errorf("queue: load script: %w", err)
		}
	}
	return &RedisBackend{client: client, logger: logger, alerters: alerters}, nil
}

func (b *RedisBackend) Enqueue(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", j.ID, err)
	}
	if err := enqueueScript.Run(ctx, b.client,
		[]string{jobKey(j.ID), queueMainKey},
		data, j.Score(), j.ID.String(),
	).Err(); err != nil {
		return fmt.Errorf("queue: enqueue %s: %w", j.ID, err)
	}
	b.logger.Info().Str("job_id", j.ID.String()).Str("kind", j.Kind).
		Str("priority", string(j.Priority)).Msg("job enqueued")
	return nil
}

// EnqueueBatch pipelines one enqueue script invocation per job. Each
// element's atomicity is per-job; a failure partway through the pipeline
// does not roll back jobs that already succeeded.
func (b *RedisBackend) EnqueueBatch(ctx context.Context, jobs []*job.Job) []error {
	errs := make([]error, len(jobs))
	pipe := b.client.Pipeline()
	cmds := make([]*redis.Cmd, len(jobs))
	for i, j := range jobs {
		data, err := json.Marshal(j)
		if err != nil {
			errs[i] = fmt.Errorf("queue: marshal job %s: %w", j.ID, err)
			continue
		}
		cmds[i] = enqueueScript.Run(ctx, pipe, []string{jobKey(j.ID), queueMainKey}, data, j.Score(), j.ID.String())
	}
	pipe.Exec(ctx)
	for i := range jobs {
		if errs[i] == nil && cmds[i] != nil {
			if _, cmdErr := cmds[i].Result(); cmdErr != nil {
				errs[i] = fmt.Errorf("queue: enqueue %s: %w", jobs[i].ID, cmdErr)
			}
		}
	}
	b.logger.Info().Int("count", len(jobs)).Msg("batch enqueued")
	return errs
}

// Dequeue blocks up to timeout on BZPOPMIN against the single priority
// index. On pop it fetches the full record separately; if that record was
// deleted concurrently it returns nil, nil rather than surfacing an error.
func (b *RedisBackend) Dequeue(ctx context.Context, timeout time.Duration) (*job.Job, error) {
	res, err := b.client.BZPopMin(ctx, timeout, queueMainKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: dequeue: %w", err)
	}
	idStr, ok := res.Member.(string)
	if !ok {
		return nil, fmt.Errorf("queue: dequeue: unexpected member type %T", res.Member)
	}
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
	b.logger.Debug().Str("job_id", id.String()).Msg("job dequeued")
	return j, nil
}

func (b *RedisBackend) Get(ctx context.Context, id uuid.UUID) (*job.Job, error) {
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

func (b *RedisBackend) Update(ctx context.Context, j *job.Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", j.ID, err)
	}
	if err := b.client.Set(ctx, jobKey(j.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("queue: update %s: %w", j.ID, err)
	}
	b.logger.Debug().Str("job_id", j.ID.String()).Str("status", string(j.Status)).Msg("job updated")
	return nil
}

func (b *RedisBackend) UpdateProgress(ctx context.Context, id uuid.UUID, percent uint8) error {
	n, err := updateProgressScript.Run(ctx, b.client, []string{jobKey(id)}, percent).Int()
	if err != nil {
		return fmt.Errorf("queue: update progress %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, id uuid.UUID) error {
	if err := deleteScript.Run(ctx, b.client,
		[]string{jobKey(id), queueMainKey, activeJobsKey}, id.String(),
	).Err(); err != nil {
		return fmt.Errorf("queue: delete %s: %w", id, err)
	}
	b.logger.Info().Str("job_id", id.String()).Msg("job deleted")
	return nil
}

func (b *RedisBackend) MoveToDLQ(ctx context.Context, j *job.Job) error {
	j.Status = job.DeadLetter
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", j.ID, err)
	}
	if err := moveToDLQScript.Run(ctx, b.client,
		[]string{jobKey(j.ID), queueDLQKey}, data, j.ID.String(),
	).Err(); err != nil {
		return fmt.Errorf("queue: move to dlq %s: %w", j.ID, err)
	}
	b.logger.Warn().Str("job_id", j.ID.String()).Str("kind", j.Kind).
		Uint8("retry_count", j.RetryCount).Msg("job moved to dlq")

	entry := DLQEntry{Job: j, FailedAt: time.Now().UTC()}
	for _, a := range b.alerters {
		go func(a Alerter) {
			if err := a.Alert(context.Background(), entry); err != nil {
				b.logger.Error().Err(err).Str("job_id", j.ID.String()).Msg("dlq alert failed")
			}
		}(a)
	}
	return nil
}

func (b *RedisBackend) GetStats(ctx context.Context) (Stats, error) {
	pipe := b.client.Pipeline()
	depth := pipe.ZCard(ctx, queueMainKey)
	dlq := pipe.LLen(ctx, queueDLQKey)
	active := pipe.SCard(ctx, activeJobsKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Stats{}, fmt.Errorf("queue: stats: %w", err)
	}
	return Stats{QueueDepth: depth.Val(), DLQDepth: dlq.Val(), ActiveJobs: active.Val()}, nil
}

func (b *RedisBackend) AcquireLock(ctx context.Context, id uuid.UUID, ttl time.Duration) (Lock, error) {
	lock, err := acquireLock(ctx, b.client, id, ttl)
	if err == nil {
		b.logger.Debug().Str("job_id", id.String()).Msg("lock acquired")
	}
	return lock, err
}

// Ack is a no-op for the priority backend: BZPOPMIN already removed the
// work item from the index, so there is nothing left to acknowledge.
func (b *RedisBackend) Ack(ctx context.Context, id uuid.UUID, token string) error {
	return nil
}
