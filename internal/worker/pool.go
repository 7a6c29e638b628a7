package worker

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pool runs fire-and-forget background jobs on a fixed set of workers.
// Every job outcome is observable: failures land in the log and the
// optional sink, never in a dropped goroutine.
type Pool struct {
	jobs       chan job
	wg         sync.WaitGroup
	closeOnce  sync.Once
	jobTimeout time.Duration
	onDone     func(name string, err error)
}

type job struct {
	name string
	run  func(ctx context.Context) error
}

func NewPool(workers, queueSize int, onDone func(name string, err error)) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	p := &Pool{
		jobs:       make(chan job, queueSize),
		jobTimeout: 60 * time.Second,
		onDone:     onDone,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit schedules a job without blocking. It returns false when the queue
// is full or the pool is closed; callers treat that as a degradation, not
// an error.
func (p *Pool) Submit(name string, run func(ctx context.Context) error) (submitted bool) {
	defer func() {
		// Submitting on a closed pool during shutdown is a benign race.
		if recover() != nil {
			submitted = false
		}
	}()
	select {
	case p.jobs <- job{name: name, run: run}:
		return true
	default:
		log.Printf("background queue full, dropping job %s", name)
		return false
	}
}

// Close stops intake and waits for queued jobs to drain.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), p.jobTimeout)
		err := j.run(ctx)
		cancel()
		if err != nil {
			log.Printf("background job %s failed: %v", j.name, err)
		}
		if p.onDone != nil {
			p.onDone(j.name, err)
		}
	}
}
