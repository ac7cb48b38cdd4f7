// Package queue is a Redis-backed job queue with at-least-once delivery.
//
// Producers push envelopes onto a waiting list. A consumer atomically moves
// one into its own processing list, and removes it on Ack. Failed deliveries
// are rescheduled on a delayed sorted set with exponential backoff until the
// attempt budget runs out, after which they land on a dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kiranshivaraju/chatvault/pkg/models"
)

// ErrNoJob is returned by Receive when no job became available before the
// poll timeout.
var ErrNoJob = errors.New("no job available")

const (
	DefaultName        = "ingest"
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 5 * time.Second
	DefaultBackoffMax  = 10 * time.Minute

	promoteBatch = 100
)

// promoteDue moves delayed envelopes whose due time has passed onto the
// consuming end of the waiting list.
var promoteDue = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, v in ipairs(due) do
	redis.call('ZREM', KEYS[1], v)
	redis.call('RPUSH', KEYS[2], v)
end
return #due
`)

// Envelope wraps a job with its delivery bookkeeping.
type Envelope struct {
	ID          uuid.UUID           `json:"id"`
	Attempt     int                 `json:"attempt"`
	MaxAttempts int                 `json:"max_attempts"`
	Job         models.IngestionJob `json:"job"`
	EnqueuedAt  time.Time           `json:"enqueued_at"`
	LastError   string              `json:"last_error,omitempty"`
}

// Delivery is an envelope handed to a consumer. It must be passed back to
// Ack or Fail.
type Delivery struct {
	Envelope
	raw string
}

// Options configures a RedisQueue.
type Options struct {
	Name        string
	Consumer    string
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Now         func() time.Time // defaults to time.Now
}

// FailResult reports what Fail did with a delivery.
type FailResult struct {
	Dead    bool
	RetryIn time.Duration
}

// Stats is a point-in-time view of queue depths.
type Stats struct {
	Waiting    int64 `json:"waiting"`
	Delayed    int64 `json:"delayed"`
	Processing int64 `json:"processing"`
	Dead       int64 `json:"dead"`
}

// RedisQueue implements the job queue on go-redis/v9.
type RedisQueue struct {
	client *redis.Client
	opts   Options
	keys   keys
	now    func() time.Time
}

// New creates a RedisQueue. Zero-valued options take the defaults.
func New(client *redis.Client, opts Options) *RedisQueue {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Consumer == "" {
		opts.Consumer = "default"
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = DefaultBackoffBase
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = DefaultBackoffMax
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &RedisQueue{
		client: client,
		opts:   opts,
		keys:   newKeys(opts.Name, opts.Consumer),
		now:    opts.Now,
	}
}

// Enqueue submits a job for its first attempt.
func (q *RedisQueue) Enqueue(ctx context.Context, job models.IngestionJob) (uuid.UUID, error) {
	env := Envelope{
		ID:          uuid.New(),
		Attempt:     1,
		MaxAttempts: q.opts.MaxAttempts,
		Job:         job,
		EnqueuedAt:  q.now().UTC(),
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.keys.waiting, raw).Err(); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue job for chat %s: %w", job.ChatID, err)
	}
	return env.ID, nil
}

// Receive blocks up to timeout for the next job and moves it to this
// consumer's processing list. It returns ErrNoJob on timeout.
func (q *RedisQueue) Receive(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	if err := q.promote(ctx); err != nil {
		return nil, err
	}

	raw, err := q.client.BLMove(ctx, q.keys.waiting, q.keys.processing, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoJob
	}
	if err != nil {
		return nil, fmt.Errorf("receive job: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// Unreadable payloads can never succeed; park them with the dead letters.
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.keys.processing, 1, raw)
		pipe.LPush(ctx, q.keys.dead, raw)
		if _, perr := pipe.Exec(ctx); perr != nil {
			return nil, fmt.Errorf("dead-letter malformed envelope: %w", perr)
		}
		return nil, fmt.Errorf("malformed envelope: %w", err)
	}
	return &Delivery{Envelope: env, raw: raw}, nil
}

// Ack removes a successfully processed delivery.
func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if err := q.client.LRem(ctx, q.keys.processing, 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", d.ID, err)
	}
	return nil
}

// Fail records a failed attempt. The delivery is rescheduled after an
// exponential delay, or moved to the dead-letter list once its attempts are
// exhausted.
func (q *RedisQueue) Fail(ctx context.Context, d *Delivery, cause error) (FailResult, error) {
	next := d.Envelope
	if cause != nil {
		next.LastError = cause.Error()
	}

	if d.Attempt >= d.MaxAttempts {
		raw, err := json.Marshal(next)
		if err != nil {
			return FailResult{}, fmt.Errorf("marshal envelope: %w", err)
		}
		pipe := q.client.TxPipeline()
		pipe.LRem(ctx, q.keys.processing, 1, d.raw)
		pipe.LPush(ctx, q.keys.dead, raw)
		if _, err := pipe.Exec(ctx); err != nil {
			return FailResult{}, fmt.Errorf("dead-letter job %s: %w", d.ID, err)
		}
		return FailResult{Dead: true}, nil
	}

	delay := q.RetryDelay(d.Attempt)
	next.Attempt = d.Attempt + 1
	raw, err := json.Marshal(next)
	if err != nil {
		return FailResult{}, fmt.Errorf("marshal envelope: %w", err)
	}
	due := q.now().Add(delay)

	pipe := q.client.TxPipeline()
	pipe.LRem(ctx, q.keys.processing, 1, d.raw)
	pipe.ZAdd(ctx, q.keys.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return FailResult{}, fmt.Errorf("reschedule job %s: %w", d.ID, err)
	}
	return FailResult{RetryIn: delay}, nil
}

// RetryDelay returns the wait before the attempt following attempt:
// base, 2*base, 4*base, ... capped at the configured maximum.
func (q *RedisQueue) RetryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.opts.BackoffBase
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = q.opts.BackoffMax
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// Recover returns every job left in this consumer's processing list, e.g. by
// a crash, to the front of the waiting list. The attempt count is unchanged.
func (q *RedisQueue) Recover(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.keys.processing, q.keys.waiting, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("recover processing list: %w", err)
		}
		n++
	}
}

// Stats reports the queue depths as seen by this consumer.
func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.LLen(ctx, q.keys.waiting)
	delayed := pipe.ZCard(ctx, q.keys.delayed)
	processing := pipe.LLen(ctx, q.keys.processing)
	dead := pipe.LLen(ctx, q.keys.dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{
		Waiting:    waiting.Val(),
		Delayed:    delayed.Val(),
		Processing: processing.Val(),
		Dead:       dead.Val(),
	}, nil
}

// DeadLetters returns up to limit of the most recent dead-lettered envelopes.
// Payloads that no longer decode are skipped.
func (q *RedisQueue) DeadLetters(ctx context.Context, limit int64) ([]Envelope, error) {
	raws, err := q.client.LRange(ctx, q.keys.dead, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]Envelope, 0, len(raws))
	for _, raw := range raws {
		var env Envelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

func (q *RedisQueue) promote(ctx context.Context) error {
	now := strconv.FormatInt(q.now().UnixMilli(), 10)
	err := promoteDue.Run(ctx, q.client, []string{q.keys.delayed, q.keys.waiting}, now, promoteBatch).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("promote delayed jobs: %w", err)
	}
	return nil
}
