package worker

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type clientQueue struct {
	jobs     []Job
	enqueued bool
}

// Config bounds the dispatcher.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

type Dispatcher struct {
	pool      *jobChannelPool
	jobQueue  chan Job
	queueSize int64
	pending   atomic.Int64
	stopped   atomic.Bool
	quit      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	log       logrus.FieldLogger

	mu        sync.Mutex
	queues    map[string]*clientQueue // jobs waiting per client
	ready     *list.List              // round-robin order of client keys
	positions map[string]*list.Element
}

func NewDispatcher(cfg Config, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.MinWorkers < 0 {
		cfg.MinWorkers = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	pool := newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, log)

	d := &Dispatcher{
		pool:      pool,
		jobQueue:  make(chan Job, cfg.QueueSize),
		queueSize: int64(cfg.QueueSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		log:       log,
		queues:    make(map[string]*clientQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues task and waits for it to finish. It fails fast with
// ErrDispatcherBusy when the queue is full and returns ctx.Err() when the
// caller gives up first; a job whose context ended before a worker picked it
// up is skipped.
func (d *Dispatcher) Submit(ctx context.Context, key string, task Task) error {
	if d.stopped.Load() {
		return ErrDispatcherStopped
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.pending.Add(1) > d.queueSize {
		d.pending.Add(-1)
		return ErrDispatcherBusy
	}

	job := Job{Key: key, ctx: ctx, task: task, done: make(chan error, 1)}
	select {
	case d.jobQueue <- job:
	default:
		d.pending.Add(-1)
		return ErrDispatcherBusy
	}

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending reports how many jobs wait for a worker.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// Workers reports how many workers are alive.
func (d *Dispatcher) Workers() int {
	return d.pool.size()
}

// Stop rejects new jobs, fails queued ones with ErrDispatcherStopped and
// waits for running jobs to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.stopped.Store(true)
		close(d.quit)
		d.pool.stop()
		<-d.done
		d.failQueued()
		d.pool.wait()
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		// dispatch one job of the client at the front of the ready list
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &clientQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Key] = d.ready.PushBack(job.Key)
}

// dispatchOne hands the next job of the front client to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan, ok := d.pool.acquire()
	d.pending.Add(-1)
	if !ok {
		job.done <- ErrDispatcherStopped
		return false
	}
	d.log.WithFields(logrus.Fields{"client": key, "worker": d.pool.workerID(workerChan)}).Debug("job assigned")
	select {
	case workerChan <- job:
		return true
	case <-d.quit:
		job.done <- ErrDispatcherStopped
		return false
	}
}

func (d *Dispatcher) failQueued() {
	d.mu.Lock()
	for key, q := range d.queues {
		for _, job := range q.jobs {
			d.pending.Add(-1)
			job.done <- ErrDispatcherStopped
		}
		delete(d.queues, key)
	}
	d.ready.Init()
	d.positions = make(map[string]*list.Element)
	d.mu.Unlock()

	for {
		select {
		case job := <-d.jobQueue:
			d.pending.Add(-1)
			job.done <- ErrDispatcherStopped
		default:
			return
		}
	}
}

func runJob(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	if err := job.ctx.Err(); err != nil {
		return err
	}
	return job.task(job.ctx)
}
