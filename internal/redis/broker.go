package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/jobs"
)

// promoteScript moves due jobs from the delayed set to the tail of the wait
// list in one step, so two workers never promote the same job.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, job in ipairs(due) do
	redis.call('ZREM', KEYS[1], job)
	redis.call('RPUSH', KEYS[2], job)
end
return #due
`)

const promoteBatch = 100

func waitKey(q jobs.Queue) string    { return "crmflow:queue:" + string(q) + ":wait" }
func delayedKey(q jobs.Queue) string { return "crmflow:queue:" + string(q) + ":delayed" }

type BrokerConfig struct {
	// PollInterval is the pause between empty polls of a queue.
	PollInterval time.Duration
	// DedupeTTL bounds how long a job id blocks re-enqueueing.
	DedupeTTL time.Duration
}

// Broker is a jobs.Broker on Redis lists. Ready jobs wait in a FIFO list per
// queue; delayed jobs sit in a sorted set scored by run-at milliseconds
// until promoted.
type Broker struct {
	client *Client
	dedupe *Deduper
	logger *zap.Logger
	poll   time.Duration
	now    func() time.Time

	closeOnce sync.Once
	closed    chan struct{}
}

var _ jobs.Broker = (*Broker)(nil)

func NewBroker(client *Client, cfg BrokerConfig, logger *zap.Logger) *Broker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 200 * time.Millisecond
	}
	return &Broker{
		client: client,
		dedupe: NewDeduper(client, cfg.DedupeTTL, logger),
		logger: logger,
		poll:   cfg.PollInterval,
		now:    time.Now,
		closed: make(chan struct{}),
	}
}

func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

// Enqueue stores job. A job id that was already enqueued within the dedupe
// TTL is ignored.
func (b *Broker) Enqueue(ctx context.Context, job *jobs.Job) error {
	if b.isClosed() {
		return jobs.ErrBrokerClosed
	}

	fresh, err := b.dedupe.Reserve(ctx, "job:"+string(job.Queue), job.ID)
	if err != nil {
		return err
	}
	if !fresh {
		b.logger.Info("duplicate job ignored",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
		)
		return nil
	}

	data, err := job.Encode()
	if err != nil {
		return err
	}

	if job.RunAt.After(b.now()) {
		err = b.client.rdb.ZAdd(ctx, delayedKey(job.Queue), redis.Z{
			Score:  float64(job.RunAt.UnixMilli()),
			Member: data,
		}).Err()
	} else {
		err = b.client.rdb.RPush(ctx, waitKey(job.Queue), data).Err()
	}
	if err != nil {
		if relErr := b.dedupe.Release(ctx, "job:"+string(job.Queue), job.ID); relErr != nil {
			b.logger.Warn("failed to release job id", zap.String("job_id", job.ID), zap.Error(relErr))
		}
		return fmt.Errorf("redis enqueue failed: %w", err)
	}
	return nil
}

// Dequeue polls rather than using BLPOP so that cancellation of ctx is
// honoured within one poll interval.
func (b *Broker) Dequeue(ctx context.Context, queue jobs.Queue) (*jobs.Job, error) {
	for {
		if b.isClosed() {
			return nil, jobs.ErrBrokerClosed
		}

		if err := b.promote(ctx, queue); err != nil {
			return nil, err
		}

		data, err := b.client.rdb.LPop(ctx, waitKey(queue)).Bytes()
		switch {
		case err == nil:
			job, decErr := jobs.DecodeJob(data)
			if decErr != nil {
				b.logger.Error("dropping undecodable job", zap.String("queue", string(queue)), zap.Error(decErr))
				continue
			}
			return job, nil
		case errors.Is(err, redis.Nil):
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("redis lpop failed: %w", err)
		}

		t := time.NewTimer(b.poll)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-b.closed:
			t.Stop()
			return nil, jobs.ErrBrokerClosed
		case <-t.C:
		}
	}
}

func (b *Broker) promote(ctx context.Context, queue jobs.Queue) error {
	now := strconv.FormatInt(b.now().UnixMilli(), 10)
	err := promoteScript.Run(ctx, b.client.rdb,
		[]string{delayedKey(queue), waitKey(queue)}, now, promoteBatch).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("promote delayed jobs: %w", err)
	}
	return nil
}

// Len returns the number of ready and delayed jobs on queue.
func (b *Broker) Len(ctx context.Context, queue jobs.Queue) (int64, error) {
	pipe := b.client.rdb.Pipeline()
	ready := pipe.LLen(ctx, waitKey(queue))
	delayed := pipe.ZCard(ctx, delayedKey(queue))
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis pipeline failed: %w", err)
	}
	return ready.Val() + delayed.Val(), nil
}

// Close stops pending Dequeue calls. The underlying client is shared and
// closed by its owner.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}

func (b *Broker) isClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}
