package usecase

import (
	"context"
	"sync"
)

// loop runs tasks one at a time on a single goroutine. Everything a session
// owns is only touched from inside a task.
type loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

func newLoop(queue int) *loop {
	if queue <= 0 {
		queue = 1024
	}
	l := &loop{
		tasks: make(chan func(), queue),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *loop) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case task := <-l.tasks:
			task()
		}
	}
}

// Post queues task without waiting for it. It blocks while the queue is full
// and returns false once the loop is closed.
func (l *loop) Post(task func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- task:
		return true
	case <-l.done:
		return false
	}
}

// TryPost queues task only if there is room.
func (l *loop) TryPost(task func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- task:
		return true
	default:
		return false
	}
}

// Do runs task on the loop and waits for it to finish.
func (l *loop) Do(ctx context.Context, task func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		task()
	}) {
		return ErrSessionClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrSessionClosed
	}
}

func (l *loop) Close() {
	l.once.Do(func() { close(l.done) })
	l.wg.Wait()
}

func (l *loop) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}
