package worker

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestDispatcher(t *testing.T, cfg Config) *Dispatcher {
	t.Helper()
	d := NewDispatcher(cfg, quietLogger())
	t.Cleanup(d.Stop)
	return d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// blockingTask signals started and waits for release.
func blockingTask(started chan<- struct{}, release <-chan struct{}) Task {
	return func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}
}

func TestDispatcherRunsTasks(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 2, QueueSize: 8})

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Submit(context.Background(), "client", func(ctx context.Context) error {
				ran.Add(1)
				return nil
			}); err != nil {
				t.Errorf("Submit error: %v", err)
			}
		}()
	}
	wg.Wait()
	if ran.Load() != 5 {
		t.Fatalf("expected 5 tasks to run, got %d", ran.Load())
	}
	if d.Workers() > 2 {
		t.Fatalf("pool exceeded max workers: %d", d.Workers())
	}
}

func TestDispatcherReturnsTaskError(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	boom := errors.New("model failed")
	if err := d.Submit(context.Background(), "c", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected task error, got %v", err)
	}
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	err := d.Submit(context.Background(), "c", func(context.Context) error { panic("bad") })
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic error, got %v", err)
	}
	if err := d.Submit(context.Background(), "c", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("worker should survive a panic: %v", err)
	}
}

func TestDispatcherBusyWhenQueueFull(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() { first <- d.Submit(context.Background(), "a", blockingTask(started, release)) }()
	<-started

	second := make(chan error, 1)
	go func() {
		second <- d.Submit(context.Background(), "b", func(context.Context) error { return nil })
	}()
	waitFor(t, "queued job", func() bool { return d.Pending() == 1 })

	if err := d.Submit(context.Background(), "c", func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", err)
	}

	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first job error: %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("second job error: %v", err)
	}
}

func TestDispatcherSkipsCancelledJobs(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})

	started := make(chan struct{})
	release := make(chan struct{})
	first := make(chan error, 1)
	go func() { first <- d.Submit(context.Background(), "a", blockingTask(started, release)) }()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	queued := make(chan error, 1)
	go func() {
		queued <- d.Submit(ctx, "b", func(context.Context) error {
			ran.Store(true)
			return nil
		})
	}()
	waitFor(t, "queued job", func() bool { return d.Pending() == 1 })
	cancel()

	if err := <-queued; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
	if err := <-first; err != nil {
		t.Fatalf("first job error: %v", err)
	}
	// a later job proves the cancelled one has been drained
	if err := d.Submit(context.Background(), "a", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("follow-up job error: %v", err)
	}
	if ran.Load() {
		t.Fatalf("cancelled job should not run")
	}
}

func TestDispatcherRejectsCancelledContext(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Submit(ctx, "a", func(context.Context) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if d.Pending() != 0 {
		t.Fatalf("pending should be zero, got %d", d.Pending())
	}
}

func TestDispatcherRetiresIdleWorkers(t *testing.T) {
	d := newTestDispatcher(t, Config{MinWorkers: 1, MaxWorkers: 3, QueueSize: 8, IdleTimeout: 20 * time.Millisecond})

	release := make(chan struct{})
	var wg sync.WaitGroup
	var running atomic.Int32
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = d.Submit(context.Background(), "c", func(context.Context) error {
				running.Add(1)
				<-release
				return nil
			})
		}()
	}
	waitFor(t, "three running jobs", func() bool { return running.Load() == 3 })
	if d.Workers() != 3 {
		t.Fatalf("expected 3 workers, got %d", d.Workers())
	}
	close(release)
	wg.Wait()

	waitFor(t, "idle workers to retire", func() bool { return d.Workers() == 1 })
}

func TestDispatcherStop(t *testing.T) {
	d := NewDispatcher(Config{MinWorkers: 2, MaxWorkers: 2, QueueSize: 2}, quietLogger())
	if err := d.Submit(context.Background(), "a", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	d.Stop()
	d.Stop()
	if err := d.Submit(context.Background(), "a", func(context.Context) error { return nil }); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("expected ErrDispatcherStopped, got %v", err)
	}
	if d.Workers() != 0 {
		t.Fatalf("expected all workers stopped, got %d", d.Workers())
	}
}

type fakeAnswerer struct {
	answer string
	err    error
}

func (f fakeAnswerer) Answer(_ context.Context, question string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.answer + question, nil
}

func TestManagerAnswer(t *testing.T) {
	m := NewManager(fakeAnswerer{answer: "re: "}, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 2}, quietLogger())
	t.Cleanup(m.Stop)

	got, err := m.Answer(context.Background(), "127.0.0.1", "fever")
	if err != nil {
		t.Fatalf("Answer error: %v", err)
	}
	if got != "re: fever" {
		t.Fatalf("unexpected answer %q", got)
	}
}

func TestManagerAnswerError(t *testing.T) {
	boom := errors.New("no quota")
	m := NewManager(fakeAnswerer{err: boom}, Config{MinWorkers: 1, MaxWorkers: 1, QueueSize: 2}, quietLogger())
	t.Cleanup(m.Stop)

	if _, err := m.Answer(context.Background(), "k", "fever"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped answer error, got %v", err)
	}
}
