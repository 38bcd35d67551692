package gateway

import (
	"context"
	"errors"
	"sync"
)

var ErrWorkerClosed = errors.New("worker closed")

// Task is phase-two work. It gets a context that is not tied to any request.
type Task func(ctx context.Context)

// Worker runs tasks one at a time on its own goroutine, in submission order.
type Worker struct {
	tasks  chan Task
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

func NewWorker(buffer int) *Worker {
	if buffer < 1 {
		buffer = 1
	}
	w := &Worker{tasks: make(chan Task, buffer), done: make(chan struct{})}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.done)
	for t := range w.tasks {
		t(context.Background())
	}
}

// Submit queues t, blocking while the queue is full. Nothing is dropped.
func (w *Worker) Submit(t Task) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWorkerClosed
	}
	w.tasks <- t
	return nil
}

// Close stops accepting tasks and waits for queued ones to finish.
func (w *Worker) Close() {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.tasks)
	}
	w.mu.Unlock()
	<-w.done
}
