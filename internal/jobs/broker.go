package jobs

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBrokerClosed is returned by Enqueue and Dequeue after Close.
var ErrBrokerClosed = errors.New("broker closed")

// Broker is the durable hand-off between producers and workers.
//
// Dequeue blocks until a job on queue is eligible to run or ctx is done, in
// which case it returns ctx.Err(). Delivery is at most once: a dequeued job is
// gone from the broker whatever its handler does.
type Broker interface {
	Ping(ctx context.Context) error
	Enqueue(ctx context.Context, job *Job) error
	Dequeue(ctx context.Context, queue Queue) (*Job, error)
	Close() error
}

// MemoryBroker is an in-process Broker for development and tests.
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[Queue][]*Job
	signal map[Queue]chan struct{}
	closed chan struct{}
	done   bool

	// PollInterval bounds how long Dequeue sleeps before rechecking
	// delayed jobs.
	PollInterval time.Duration
	now          func() time.Time
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:       make(map[Queue][]*Job),
		signal:       make(map[Queue]chan struct{}),
		closed:       make(chan struct{}),
		PollInterval: 50 * time.Millisecond,
		now:          time.Now,
	}
}

func (b *MemoryBroker) Ping(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return ErrBrokerClosed
	}
	return nil
}

// Enqueue ignores a job whose ID is already waiting on the same queue.
func (b *MemoryBroker) Enqueue(ctx context.Context, job *Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return ErrBrokerClosed
	}

	for _, waiting := range b.queues[job.Queue] {
		if waiting.ID == job.ID {
			return nil
		}
	}
	cp := *job
	b.queues[job.Queue] = append(b.queues[job.Queue], &cp)

	// buffer of 1 coalesces signals; waiters recheck on PollInterval anyway
	select {
	case b.signalFor(job.Queue) <- struct{}{}:
	default:
	}
	return nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, queue Queue) (*Job, error) {
	for {
		job, wait, err := b.tryDequeue(queue)
		if err != nil || job != nil {
			return job, err
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-b.closed:
			timer.Stop()
			return nil, ErrBrokerClosed
		case <-b.waitFor(queue):
			timer.Stop()
		case <-timer.C:
		}
	}
}

// tryDequeue pops the first eligible job in FIFO order. When none is ready it
// returns how long to sleep before the next check.
func (b *MemoryBroker) tryDequeue(queue Queue) (*Job, time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return nil, 0, ErrBrokerClosed
	}

	now := b.now()
	wait := b.PollInterval
	jobs := b.queues[queue]
	for i, j := range jobs {
		if !j.RunAt.After(now) {
			b.queues[queue] = append(jobs[:i:i], jobs[i+1:]...)
			return j, 0, nil
		}
		if d := j.RunAt.Sub(now); d < wait {
			wait = d
		}
	}
	return nil, wait, nil
}

// Len returns the number of jobs waiting on queue, delayed ones included.
func (b *MemoryBroker) Len(queue Queue) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return nil
	}
	b.done = true
	close(b.closed)
	return nil
}

func (b *MemoryBroker) waitFor(queue Queue) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signalFor(queue)
}

// signalFor must be called with mu held.
func (b *MemoryBroker) signalFor(queue Queue) chan struct{} {
	ch, ok := b.signal[queue]
	if !ok {
		ch = make(chan struct{}, 1)
		b.signal[queue] = ch
	}
	return ch
}
