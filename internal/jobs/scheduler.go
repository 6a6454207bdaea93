package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lalithlochan/crmflow/internal/metrics"
)

// Mode is the runtime mode of the process.
type Mode int

const (
	ModeProduction Mode = iota
	ModeDevelopment
	ModeTest
)

func (m Mode) String() string {
	switch m {
	case ModeProduction:
		return "production"
	case ModeDevelopment:
		return "development"
	case ModeTest:
		return "test"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// State is the worker pool lifecycle state.
type State int32

const (
	StateInit State = iota
	StateCheckingBroker
	StateAvailable
	StateUnavailable
	StateRunning
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateCheckingBroker:
		return "CHECKING_BROKER"
	case StateAvailable:
		return "AVAILABLE"
	case StateUnavailable:
		return "UNAVAILABLE"
	case StateRunning:
		return "RUNNING"
	case StateDisabled:
		return "DISABLED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// MarshalText renders the state name in JSON responses.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type SchedulerConfig struct {
	Mode Mode
	// Concurrency is the number of workers per queue; missing or zero means 1.
	Concurrency map[Queue]int
	// PollBackoff is the pause after a Dequeue error.
	PollBackoff time.Duration
}

// Scheduler runs a pool of workers per registered queue.
//
// INIT -> CHECKING_BROKER -> AVAILABLE -> RUNNING when the broker answers,
// CHECKING_BROKER -> UNAVAILABLE -> DISABLED when it does not. In ModeTest
// Start does nothing and the state stays INIT.
type Scheduler struct {
	cfg      SchedulerConfig
	broker   Broker
	registry *Registry
	guard    *Guard
	logger   *zap.Logger

	state   atomic.Int32
	startMu sync.Mutex
	started bool
	group   *errgroup.Group
}

func NewScheduler(cfg SchedulerConfig, broker Broker, registry *Registry, guard *Guard, logger *zap.Logger) *Scheduler {
	if cfg.PollBackoff <= 0 {
		cfg.PollBackoff = time.Second
	}
	s := &Scheduler{
		cfg:      cfg,
		broker:   broker,
		registry: registry,
		guard:    guard,
		logger:   logger,
	}
	s.setState(StateInit)
	return s
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
	metrics.SetSchedulerState(int(st))
}

// Start probes the broker and launches the workers. It returns once workers
// are running or the pool is disabled; an unreachable broker is not an error.
// Workers stop when ctx is cancelled; use Wait to join them.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Mode == ModeTest {
		s.logger.Debug("test mode, background workers not started")
		return nil
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true

	s.setState(StateCheckingBroker)
	if !s.guard.Check(ctx) {
		s.setState(StateUnavailable)
		s.logger.Warn("job broker unavailable, background jobs disabled")
		s.setState(StateDisabled)
		return nil
	}
	s.setState(StateAvailable)

	g, gctx := errgroup.WithContext(ctx)
	workers := 0
	for _, q := range s.registry.Queues() {
		n := s.cfg.Concurrency[q]
		if n < 1 {
			n = 1
		}
		for i := 0; i < n; i++ {
			g.Go(func() error {
				s.work(gctx, q, i)
				return nil
			})
			workers++
		}
	}
	s.group = g

	s.setState(StateRunning)
	s.logger.Info("workers started",
		zap.Int("workers", workers),
		zap.String("mode", s.cfg.Mode.String()),
	)
	return nil
}

// Wait blocks until every worker has exited.
func (s *Scheduler) Wait() error {
	s.startMu.Lock()
	g := s.group
	s.startMu.Unlock()

	if g == nil {
		return nil
	}
	return g.Wait()
}

func (s *Scheduler) work(ctx context.Context, queue Queue, id int) {
	logger := s.logger.With(zap.String("queue", string(queue)), zap.Int("worker", id))
	logger.Debug("worker started")

	for {
		job, err := s.broker.Dequeue(ctx, queue)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrBrokerClosed) {
				logger.Debug("worker stopping")
				return
			}
			logger.Error("dequeue failed", zap.Error(err))
			if sleepContext(ctx, s.cfg.PollBackoff) != nil {
				return
			}
			continue
		}

		s.run(ctx, logger, job)
	}
}

// run executes one job. Failures are logged and never stop the worker.
func (s *Scheduler) run(ctx context.Context, logger *zap.Logger, job *Job) {
	h, ok := s.registry.Lookup(job.Queue, job.Name)
	if !ok {
		logger.Warn("no handler for job, dropping",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
		)
		metrics.RecordJobProcessed(string(job.Queue), job.Name, "unknown")
		return
	}

	job.AttemptsMade++
	start := time.Now()
	err := invoke(ctx, h, job)
	elapsed := time.Since(start)
	metrics.RecordJobDuration(string(job.Queue), elapsed)

	if err != nil {
		logger.Error("job failed",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
			zap.Int("attempts", job.AttemptsMade),
			zap.Error(err),
		)
		metrics.RecordJobProcessed(string(job.Queue), job.Name, "failed")
		return
	}

	logger.Info("job completed",
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.Duration("duration", elapsed),
	)
	metrics.RecordJobProcessed(string(job.Queue), job.Name, "completed")
}

func invoke(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h(ctx, job)
}
