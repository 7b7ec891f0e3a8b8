package queue

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antech-v6-engine/internal/domain"
)

const defaultConcurrency = 8

// Runner executes one polling job for one integration. Failures are the
// runner's to report; the scheduler keeps ticking regardless.
type Runner func(ctx context.Context, integrationID string, data *domain.MessageData)

type queueSpec struct {
	name  string
	every time.Duration
	run   Runner
}

// Scheduler drives the polling queues. Each queue ticks at its own cadence;
// every tick lists the scheduled jobs and runs them through a bounded pool,
// skipping any integration whose previous run is still in flight.
type Scheduler struct {
	store  Store
	queues []queueSpec
	pool   chan struct{}
	log    *logrus.Entry

	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// NewScheduler creates a scheduler over the given job store. A concurrency of
// zero or less falls back to the default pool size.
func NewScheduler(store Store, concurrency int, log *logrus.Entry) *Scheduler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Scheduler{
		store:    store,
		pool:     make(chan struct{}, concurrency),
		log:      log,
		inflight: make(map[string]bool),
	}
}

// AddQueue registers a queue before Run is called.
func (s *Scheduler) AddQueue(name string, every time.Duration, run Runner) {
	s.queues = append(s.queues, queueSpec{name: name, every: every, run: run})
}

// Schedule adds the integration to every registered queue. Re-scheduling an
// already registered integration is a no-op per queue.
func (s *Scheduler) Schedule(ctx context.Context, integrationID string, data *domain.MessageData) error {
	for _, q := range s.queues {
		added, err := s.store.Add(ctx, q.name, integrationID, data)
		if err != nil {
			return err
		}
		if added {
			s.log.WithFields(logrus.Fields{
				"integration_id": integrationID,
				"queue":          q.name,
			}).Info("Scheduled polling job")
		}
	}
	return nil
}

// Unschedule removes the integration from every registered queue.
func (s *Scheduler) Unschedule(ctx context.Context, integrationID string) error {
	for _, q := range s.queues {
		if err := s.store.Remove(ctx, q.name, integrationID); err != nil {
			return err
		}
		s.log.WithFields(logrus.Fields{
			"integration_id": integrationID,
			"queue":          q.name,
		}).Info("Removed polling job")
	}
	return nil
}

// JobCounts reports the number of scheduled jobs per queue.
func (s *Scheduler) JobCounts(ctx context.Context) map[string]int {
	counts := make(map[string]int, len(s.queues))
	for _, q := range s.queues {
		n, err := s.store.Count(ctx, q.name)
		if err != nil {
			s.log.WithError(err).WithField("queue", q.name).Warn("Failed to count jobs")
			continue
		}
		counts[q.name] = n
	}
	return counts
}

// Run ticks every queue until the context is canceled, then waits for
// in-flight jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	var tickers sync.WaitGroup
	for _, q := range s.queues {
		tickers.Add(1)
		go func(q queueSpec) {
			defer tickers.Done()
			s.tick(ctx, q)
			ticker := time.NewTicker(q.every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.tick(ctx, q)
				}
			}
		}(q)
	}
	tickers.Wait()
	s.wg.Wait()
}

func (s *Scheduler) tick(ctx context.Context, q queueSpec) {
	jobs, err := s.store.List(ctx, q.name)
	if err != nil {
		s.log.WithError(err).WithField("queue", q.name).Warn("Failed to list jobs")
		return
	}
	for id, data := range jobs {
		if !s.acquire(q.name, id) {
			continue
		}
		select {
		case s.pool <- struct{}{}:
		case <-ctx.Done():
			s.release(q.name, id)
			return
		}
		s.wg.Add(1)
		go func(id string, data domain.MessageData) {
			defer s.wg.Done()
			defer func() { <-s.pool }()
			defer s.release(q.name, id)
			q.run(ctx, id, &data)
		}(id, data)
	}
}

func (s *Scheduler) acquire(queue, integrationID string) bool {
	key := queue + "/" + integrationID
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] {
		return false
	}
	s.inflight[key] = true
	return true
}

func (s *Scheduler) release(queue, integrationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, queue+"/"+integrationID)
}
