package worker

import (
	"errors"
	"sync"
	"time"
)

// ErrBusy is returned when the job queue is full; callers map it to 429.
var ErrBusy = errors.New("server is busy, please retry")

const (
	defaultMinWorkers = 2
	defaultMaxWorkers = 16
	defaultQueueSize  = 64
	defaultWorkerIdle = 30 * time.Second
)

// Pool runs submitted jobs on a bounded set of workers. Workers above the
// minimum retire after sitting idle; the queue is buffered, and a full
// queue rejects instead of blocking the caller.
type Pool struct {
	jobs    chan func()
	mu      sync.Mutex
	running int
	min     int
	max     int
	idle    time.Duration
}

func NewPool(minWorkers, maxWorkers, queueSize int, idle time.Duration) *Pool {
	if minWorkers <= 0 {
		minWorkers = defaultMinWorkers
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	p := &Pool{
		jobs: make(chan func(), queueSize),
		min:  minWorkers,
		max:  maxWorkers,
		idle: idle,
	}
	for i := 0; i < minWorkers; i++ {
		p.spawnLocked()
	}
	return p
}

// Submit enqueues a job, growing the pool when the queue is backing up.
func (p *Pool) Submit(job func()) error {
	select {
	case p.jobs <- job:
	default:
		return ErrBusy
	}
	p.maybeGrow()
	return nil
}

func (p *Pool) maybeGrow() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.jobs) > 0 && p.running < p.max {
		p.spawnLocked()
	}
}

// spawnLocked starts a worker goroutine; callers hold p.mu or run before
// the pool is shared.
func (p *Pool) spawnLocked() {
	p.running++
	go p.workerLoop()
}

func (p *Pool) workerLoop() {
	idleTimer := time.NewTimer(p.idle)
	defer idleTimer.Stop()
	for {
		select {
		case job := <-p.jobs:
			job()
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(p.idle)
		case <-idleTimer.C:
			p.mu.Lock()
			if p.running > p.min {
				p.running--
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			idleTimer.Reset(p.idle)
		}
	}
}

// Running reports the current worker count.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
