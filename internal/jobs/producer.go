package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lalithlochan/crmflow/internal/metrics"
)

// EnqueueOptions are the optional enqueue settings.
type EnqueueOptions struct {
	Delay time.Duration
	// JobID makes the enqueue idempotent on brokers that support it.
	JobID string
}

// Producer writes jobs to a broker. It never needs a running worker.
type Producer struct {
	broker Broker
	logger *zap.Logger
	now    func() time.Time
}

func NewProducer(broker Broker, logger *zap.Logger) *Producer {
	return &Producer{broker: broker, logger: logger, now: time.Now}
}

// Enqueue adds a job named name to queue.
func (p *Producer) Enqueue(ctx context.Context, queue Queue, name string, payload map[string]any, opts EnqueueOptions) (*Job, error) {
	if !queue.Valid() {
		return nil, fmt.Errorf("unknown queue %q", queue)
	}
	if name == "" {
		return nil, fmt.Errorf("job name is required")
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}

	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	now := p.now()
	job := &Job{
		ID:         id,
		Name:       name,
		Queue:      queue,
		Payload:    payload,
		Delay:      opts.Delay,
		EnqueuedAt: now,
		RunAt:      now.Add(opts.Delay),
	}

	if err := p.broker.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue %s/%s: %w", queue, name, err)
	}

	metrics.RecordJobEnqueued(string(queue), name)
	p.logger.Debug("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("job", name),
		zap.String("queue", string(queue)),
		zap.Duration("delay", opts.Delay),
	)
	return job, nil
}
