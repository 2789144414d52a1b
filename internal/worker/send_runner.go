// Package worker runs campaign sends in the background so the API can
// answer before a large list has been worked through.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ignite/engage/internal/pkg/logger"
	"github.com/ignite/engage/internal/service/dispatch"
)

var log = logger.With("worker")

var (
	// ErrQueueFull is returned by Submit when every slot is taken.
	ErrQueueFull = errors.New("send queue is full")
	// ErrStopped is returned by Submit after Stop.
	ErrStopped = errors.New("send runner is stopped")
)

// Runner executes one campaign send.
type Runner interface {
	Run(ctx context.Context, ownerID, campaignID string) (*dispatch.Result, error)
}

// SendRunnerConfig holds runner configuration.
type SendRunnerConfig struct {
	NumWorkers int
	QueueSize  int
}

// DefaultSendRunnerConfig returns default configuration.
func DefaultSendRunnerConfig() SendRunnerConfig {
	return SendRunnerConfig{NumWorkers: 4, QueueSize: 64}
}

type job struct {
	ownerID    string
	campaignID string
}

// SendRunner is a fixed pool of workers draining a bounded job queue.
// Stop cancels the pool context; the dispatcher stops issuing sends and
// still finalizes each campaign it had started.
type SendRunner struct {
	runner Runner
	jobs   chan job
	cfg    SendRunnerConfig

	completed int64
	failed    int64
	dropped   int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewSendRunner creates a runner around r.
func NewSendRunner(r Runner, cfg SendRunnerConfig) *SendRunner {
	def := DefaultSendRunnerConfig()
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = def.NumWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &SendRunner{runner: r, cfg: cfg, jobs: make(chan job, cfg.QueueSize)}
}

// Start launches the workers.
func (s *SendRunner) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("send runner already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	log.Info("starting send workers", "workers", s.cfg.NumWorkers, "queue", s.cfg.QueueSize)
	for i := 0; i < s.cfg.NumWorkers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
	return nil
}

// Stop cancels in-flight sends and waits for the workers to exit. Queued
// jobs that never started are dropped; their campaigns stay in draft.
func (s *SendRunner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	log.Info("send workers stopped",
		"completed", atomic.LoadInt64(&s.completed),
		"failed", atomic.LoadInt64(&s.failed),
		"dropped", atomic.LoadInt64(&s.dropped)+int64(len(s.jobs)),
	)
}

// Submit queues a send without blocking.
func (s *SendRunner) Submit(ownerID, campaignID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return ErrStopped
	}
	select {
	case s.jobs <- job{ownerID: ownerID, campaignID: campaignID}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats returns counters since Start.
func (s *SendRunner) Stats() map[string]int64 {
	return map[string]int64{
		"completed": atomic.LoadInt64(&s.completed),
		"failed":    atomic.LoadInt64(&s.failed),
		"queued":    int64(len(s.jobs)),
	}
}

func (s *SendRunner) worker(n int) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			return
		case j := <-s.jobs:
			// select picks at random when both cases are ready.
			if s.ctx.Err() != nil {
				atomic.AddInt64(&s.dropped, 1)
				return
			}
			s.process(n, j)
		}
	}
}

func (s *SendRunner) process(n int, j job) {
	res, err := s.runner.Run(s.ctx, j.ownerID, j.campaignID)
	if err != nil {
		atomic.AddInt64(&s.failed, 1)
		log.Error("campaign send failed", "worker", n, "campaign_id", j.campaignID, "error", err)
		return
	}
	atomic.AddInt64(&s.completed, 1)
	log.Info("campaign send finished",
		"worker", n,
		"campaign_id", j.campaignID,
		"status", string(res.Campaign.Status),
		"sent", res.Sent,
		"failed", res.Failed,
	)
}
