package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"kanflow/domain"
)

type recordingQueue struct {
	mu     sync.Mutex
	events []domain.TaskEvent
	err    error
	block  chan struct{}
}

func (q *recordingQueue) Publish(ctx context.Context, ev domain.TaskEvent) error {
	if q.block != nil {
		select {
		case <-q.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.events = append(q.events, ev)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func TestEventPublisherDeliversAsync(t *testing.T) {
	logger, _ := test.NewNullLogger()
	q := &recordingQueue{}
	p := NewEventPublisher(q, logger, PublisherOptions{Workers: 2, QueueSize: 8})

	for i := 0; i < 5; i++ {
		if err := p.Publish(context.Background(), domain.TaskEvent{Type: domain.TaskUpdated, TaskID: "t"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	p.Close()

	if got := q.count(); got != 5 {
		t.Fatalf("expected 5 delivered events, got %d", got)
	}
}

func TestEventPublisherFallsBackInline(t *testing.T) {
	logger, hook := test.NewNullLogger()
	q := &recordingQueue{block: make(chan struct{})}
	p := NewEventPublisher(q, logger, PublisherOptions{Workers: 1, QueueSize: 0, HandoffTimeout: 50 * time.Millisecond})

	// Occupy the only worker.
	if err := p.Publish(context.Background(), domain.TaskEvent{TaskID: "busy"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- p.Publish(context.Background(), domain.TaskEvent{TaskID: "inline"}) }()
	time.Sleep(100 * time.Millisecond)
	close(q.block)

	if err := <-done; err != nil {
		t.Fatalf("inline publish: %v", err)
	}
	p.Close()

	if got := q.count(); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
	saturated := false
	for _, e := range hook.AllEntries() {
		if e.Message == "event buffer saturated; publishing inline" {
			saturated = true
		}
	}
	if !saturated {
		t.Fatalf("expected saturation warning")
	}
}

func TestEventPublisherInlineErrorAfterClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	boom := errors.New("queue down")
	q := &recordingQueue{err: boom}
	p := NewEventPublisher(q, logger, PublisherOptions{Workers: 1, QueueSize: 1})
	p.Close()
	p.Close()

	if err := p.Publish(context.Background(), domain.TaskEvent{TaskID: "t"}); !errors.Is(err, boom) {
		t.Fatalf("expected inline error after close, got %v", err)
	}
}

func TestEventPublisherLogsWorkerFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	q := &recordingQueue{err: errors.New("queue down")}
	p := NewEventPublisher(q, logger, PublisherOptions{Workers: 1, QueueSize: 1})

	if err := p.Publish(context.Background(), domain.TaskEvent{TaskID: "t"}); err != nil {
		t.Fatalf("async publish should not report errors: %v", err)
	}
	p.Close()

	if entry := hook.LastEntry(); entry == nil || entry.Message != "publisher.publish.failed" {
		t.Fatalf("expected failure log, got %#v", entry)
	}
}
