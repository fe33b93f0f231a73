package bluetooth

import (
	"context"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/b0bbywan/odio-bluetooth/logger"
)

// loop serialises every registry mutation: signal handling, command
// dispatch and RPC completions all run as tasks on one goroutine. post never
// blocks, so observers running on the loop may issue commands.
type loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

func newLoop() *loop {
	return &loop{wake: make(chan struct{}, 1)}
}

func (l *loop) post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// take removes and returns the pending tasks.
func (l *loop) take() []func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	tasks := l.queue
	l.queue = nil
	return tasks
}

// drain runs queued tasks, including those they post, until the queue is
// empty. Only the loop goroutine (or a test standing in for it) may call it.
func (l *loop) drain() {
	for {
		tasks := l.take()
		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			task()
		}
	}
}

// run processes signals and posted tasks until ctx is done or the signal
// channel is closed.
func (l *loop) run(ctx context.Context, signals <-chan *dbus.Signal, handle func(*dbus.Signal)) {
	for {
		l.drain()
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case sig, ok := <-signals:
			if !ok {
				logger.Debug("[bluetooth] signal channel closed")
				return
			}
			handle(sig)
		}
	}
}
