package worker

import (
	"context"
	"errors"
)

var (
	ErrDispatcherBusy    = errors.New("dispatcher queue is full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Task is the unit of work run by a worker.
type Task func(ctx context.Context) error

// Job carries a task through the dispatcher. Key groups jobs of one client;
// clients are served round-robin.
type Job struct {
	Key  string
	ctx  context.Context
	task Task
	done chan error
	stop bool
}
