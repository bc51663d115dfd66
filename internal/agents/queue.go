package agents

import (
	"context"
	"sync"

	"supportmesh/internal/types"
)

type job struct {
	run func()
}

// Queue is a two-lane work queue. Urgent jobs always drain before normal
// ones; within a lane, jobs run in submission order.
type Queue struct {
	urgent chan job
	normal chan job
	stop   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewQueue starts workers goroutines draining both lanes.
func NewQueue(workers, depth int) *Queue {
	if workers <= 0 {
		workers = 4
	}
	if depth <= 0 {
		depth = 64
	}
	q := &Queue{
		urgent: make(chan job, depth),
		normal: make(chan job, depth),
		stop:   make(chan struct{}),
	}
	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for {
		// Drain the urgent lane before even looking at the normal one.
		select {
		case j := <-q.urgent:
			j.run()
			continue
		default:
		}
		select {
		case j := <-q.urgent:
			j.run()
		case j := <-q.normal:
			j.run()
		case <-q.stop:
			return
		}
	}
}

// Submit enqueues fn on the lane matching priority and returns once it is
// queued. It fails only when ctx is done or the queue is closing.
func (q *Queue) Submit(ctx context.Context, priority types.Priority, fn func()) error {
	lane := q.normal
	if priority == types.PriorityUrgent {
		lane = q.urgent
	}
	select {
	case lane <- job{run: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.stop:
		return context.Canceled
	}
}

// Close stops the workers after the jobs already picked up finish.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.stop) })
	q.wg.Wait()
}
