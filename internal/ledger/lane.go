package ledger

import (
	"context"
	"errors"
	"sync/atomic"
)

// ErrLaneClosed is returned for work submitted after Close.
var ErrLaneClosed = errors.New("ledger: transaction lane closed")

type laneJob struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// Lane runs submitted functions one at a time in FIFO order on a single
// goroutine. Every transaction signed by the relayer goes through it so
// nonces are consumed strictly in sequence.
type Lane struct {
	jobs    chan laneJob
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewLane starts a lane with the given queue depth.
func NewLane(queue int) *Lane {
	if queue <= 0 {
		queue = 64
	}
	l := &Lane{
		jobs:    make(chan laneJob, queue),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.stopCh:
			for {
				select {
				case j := <-l.jobs:
					j.done <- ErrLaneClosed
				default:
					return
				}
			}
		case j := <-l.jobs:
			// Skip work whose caller already gave up while queued.
			if err := j.ctx.Err(); err != nil {
				j.done <- err
				continue
			}
			j.done <- j.fn(j.ctx)
		}
	}
}

// Do queues fn and blocks until it has run. fn receives ctx and must honour
// its cancellation; Do always waits for a started fn to return.
func (l *Lane) Do(ctx context.Context, fn func(context.Context) error) error {
	if l.closed.Load() {
		return ErrLaneClosed
	}
	j := laneJob{ctx: ctx, fn: fn, done: make(chan error, 1)}
	select {
	case l.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrLaneClosed
	}
	select {
	case err := <-j.done:
		return err
	case <-l.stopped:
		select {
		case err := <-j.done:
			return err
		default:
			return ErrLaneClosed
		}
	}
}

// Close stops the lane. Queued jobs fail with ErrLaneClosed.
func (l *Lane) Close() {
	if l.closed.CompareAndSwap(false, true) {
		close(l.stopCh)
	}
	<-l.stopped
}
