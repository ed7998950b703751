package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"kanflow/domain"
)

// EventQueue is the durable sink for task events.
type EventQueue interface {
	Publish(ctx context.Context, ev domain.TaskEvent) error
}

// PublisherOptions sizes the publisher pool.
type PublisherOptions struct {
	Workers        int
	QueueSize      int
	HandoffTimeout time.Duration
	PublishTimeout time.Duration
}

func (o PublisherOptions) withDefaults() PublisherOptions {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.QueueSize < 0 {
		o.QueueSize = 0
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 10 * time.Second
	}
	return o
}

// EventPublisher hands task events to a bounded worker pool. When the pool
// is saturated the event is published inline on the caller's goroutine.
type EventPublisher struct {
	queue EventQueue
	log   *log.Logger
	opts  PublisherOptions

	mu     sync.RWMutex
	jobs   chan domain.TaskEvent
	closed bool
	wg     sync.WaitGroup
}

func NewEventPublisher(queue EventQueue, logger *log.Logger, opts PublisherOptions) *EventPublisher {
	if queue == nil {
		panic("api.NewEventPublisher: queue is nil")
	}
	if logger == nil {
		panic("api.NewEventPublisher: logger is nil")
	}
	opts = opts.withDefaults()
	p := &EventPublisher{
		queue: queue,
		log:   logger,
		opts:  opts,
		jobs:  make(chan domain.TaskEvent, opts.QueueSize),
	}
	for i := 0; i < opts.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, handoff: %v", opts.Workers, opts.QueueSize, opts.HandoffTimeout)
	return p
}

func (p *EventPublisher) worker(id int) {
	defer p.wg.Done()
	for ev := range p.jobs {
		if err := p.publish(context.Background(), ev); err != nil {
			p.log.WithError(err).WithFields(log.Fields{
				"worker": id,
				"type":   ev.Type,
				"task":   ev.TaskID,
				"user":   ev.UserID,
			}).Error("publisher.publish.failed")
		}
	}
}

func (p *EventPublisher) publish(ctx context.Context, ev domain.TaskEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.opts.PublishTimeout)
	defer cancel()
	return p.queue.Publish(ctx, ev)
}

// Publish queues ev for delivery. Only inline deliveries report errors.
func (p *EventPublisher) Publish(ctx context.Context, ev domain.TaskEvent) error {
	if p.tryEnqueue(ev) {
		return nil
	}
	p.log.WithField("type", ev.Type).Warn("event buffer saturated; publishing inline")
	return p.publish(context.WithoutCancel(ctx), ev)
}

func (p *EventPublisher) tryEnqueue(ev domain.TaskEvent) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.jobs <- ev:
		return true
	default:
	}

	if p.opts.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.opts.HandoffTimeout)
	defer timer.Stop()

	select {
	case p.jobs <- ev:
		return true
	case <-timer.C:
		return false
	}
}

// Close drains queued events and stops the workers. Later calls to Publish
// deliver inline.
func (p *EventPublisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
