package recorder

import "context"

// queue runs closures one at a time on a single goroutine. It is the only
// goroutine that touches the session and the writer.
type queue struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
}

func newQueue(depth int) *queue {
	q := &queue{
		tasks: make(chan func(), depth),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *queue) run() {
	defer close(q.done)
	for {
		select {
		case fn := <-q.tasks:
			fn()
		case <-q.quit:
			return
		}
	}
}

// do runs fn on the queue and waits for it to finish.
func (q *queue) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}
	select {
	case q.tasks <- task:
	case <-q.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post enqueues fn without waiting for it to run. It blocks while the
// queue is full.
func (q *queue) post(fn func()) bool {
	select {
	case q.tasks <- fn:
		return true
	case <-q.quit:
		return false
	}
}

// try enqueues fn only if there is room.
func (q *queue) try(fn func()) bool {
	select {
	case <-q.quit:
		return false
	default:
	}
	select {
	case q.tasks <- fn:
		return true
	default:
		return false
	}
}

func (q *queue) close() {
	close(q.quit)
	<-q.done
}
