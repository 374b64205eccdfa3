// Package cache — background rebuild pool.
//
// Logical-expiration rebuilds run off the request path on a fixed-size pool
// whose lifecycle is owned by the process (created at startup, closed at
// shutdown). A global static executor would leak goroutines past shutdown
// and make tests order-dependent, so the pool is always injected.
package cache

import "sync"

// Pool is a fixed-size worker pool for cache rebuild tasks.
type Pool struct {
	mu     sync.Mutex
	tasks  chan func()
	closed bool
	wg     sync.WaitGroup
}

// NewPool starts a pool with the given number of workers and a bounded task
// queue. workers and depth are coerced to at least 1.
func NewPool(workers, depth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if depth < 1 {
		depth = 1
	}
	p := &Pool{tasks: make(chan func(), depth)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit enqueues a task without blocking. It reports false when the pool is
// closed or the queue is full; callers treat that as "no rebuild this time" —
// the next expired read will try again.
func (p *Pool) Submit(task func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// Close stops accepting tasks and waits for in-flight rebuilds to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}
