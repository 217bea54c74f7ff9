package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "X402-Registry/internal/errors"
	"X402-Registry/internal/observability/alerting"
)

type fakeExecutor struct {
	mu       sync.Mutex
	calls    map[string]int
	failures map[string]int
	err      error
	done     atomic.Int32
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{calls: map[string]int{}, failures: map[string]int{}}
}

func (f *fakeExecutor) ExecuteProposal(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if f.failures[id] > 0 {
		f.failures[id]--
		return f.err
	}
	f.done.Add(1)
	return nil
}

func (f *fakeExecutor) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

type recordingAlerts struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerts) Notify(_ context.Context, e alerting.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recordingAlerts) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func startProcessor(t *testing.T, p *Processor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	go func() {
		if err := p.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	return cancel
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestProcessorExecutesDispatchedProposals(t *testing.T) {
	queue := NewMemoryQueue(256)
	exec := newFakeExecutor()
	p := NewProcessor(exec, queue, queue, WithWorkerCount(4))
	cancel := startProcessor(t, p)
	defer cancel()

	d := NewQueueDispatcher(queue)
	total := 100
	for i := 0; i < total; i++ {
		if err := d.Dispatch(context.Background(), fmt.Sprintf("prop-%d", i)); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}
	waitFor(t, func() bool { return int(exec.done.Load()) == total })
}

func TestProcessorRetriesRetryableFailures(t *testing.T) {
	queue := NewMemoryQueue(16)
	exec := newFakeExecutor()
	exec.err = xerrors.New(xerrors.CodeChainFailure, "rpc down", xerrors.WithRetryable(true))
	exec.failures["prop-1"] = 2
	alerts := &recordingAlerts{}
	p := NewProcessor(exec, queue, queue, WithAlertDispatcher(alerts))
	cancel := startProcessor(t, p)
	defer cancel()

	if err := queue.Publish(context.Background(), "prop-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return exec.done.Load() == 1 })
	if got := exec.callCount("prop-1"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if alerts.count() != 0 {
		t.Fatalf("expected no alerts, got %d", alerts.count())
	}
}

func TestProcessorStopsAfterMaxAttempts(t *testing.T) {
	queue := NewMemoryQueue(16)
	exec := newFakeExecutor()
	exec.err = xerrors.New(xerrors.CodeChainFailure, "rpc down", xerrors.WithRetryable(true))
	exec.failures["prop-1"] = 100
	alerts := &recordingAlerts{}
	p := NewProcessor(exec, queue, queue, WithAlertDispatcher(alerts), WithMaxAttempts(3))
	cancel := startProcessor(t, p)
	defer cancel()

	if err := queue.Publish(context.Background(), "prop-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return alerts.count() == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := exec.callCount("prop-1"); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	alerts.mu.Lock()
	defer alerts.mu.Unlock()
	ev := alerts.events[0]
	if ev.AggregateID != "prop-1" || ev.Metadata["stage"] != "terminal" || ev.Code != xerrors.CodeChainFailure {
		t.Fatalf("unexpected alert: %+v", ev)
	}
}

func TestProcessorDoesNotRetryPermanentFailures(t *testing.T) {
	queue := NewMemoryQueue(16)
	exec := newFakeExecutor()
	exec.err = xerrors.New(xerrors.CodeNotFound, "missing")
	exec.failures["prop-x"] = 1
	alerts := &recordingAlerts{}
	p := NewProcessor(exec, queue, queue, WithAlertDispatcher(alerts))
	cancel := startProcessor(t, p)
	defer cancel()

	if err := queue.Publish(context.Background(), "prop-x"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return alerts.count() == 1 })
	time.Sleep(50 * time.Millisecond)
	if got := exec.callCount("prop-x"); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
}

func TestQueueDispatcherValidation(t *testing.T) {
	var nilDispatcher *QueueDispatcher
	if err := nilDispatcher.Dispatch(context.Background(), "p"); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	queue := NewMemoryQueue(1)
	d := NewQueueDispatcher(queue)
	if err := d.Dispatch(context.Background(), "  "); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	_ = queue.Close()
	err := d.Dispatch(context.Background(), "p")
	if xerrors.CodeOf(err) != xerrors.CodeQueueFailure || !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected queue failure wrapping closed queue, got %v", err)
	}
}

func TestMemoryQueueConsumeReturnsWhenClosed(t *testing.T) {
	queue := NewMemoryQueue(4)
	var handled atomic.Int32
	if err := queue.Publish(context.Background(), "a"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = queue.Close()
	err := queue.Consume(context.Background(), 2, func(context.Context, string) error {
		handled.Add(1)
		return nil
	})
	if !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if handled.Load() != 1 {
		t.Fatalf("expected buffered command to drain, handled %d", handled.Load())
	}
}
