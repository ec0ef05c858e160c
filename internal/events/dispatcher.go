package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-ticket-service/internal/observability"
)

var (
	// ErrQueueFull is returned by Publish when the queue has no free slot.
	ErrQueueFull = errors.New("events: queue full")
	// ErrDispatcherStopped is returned by Publish after Stop.
	ErrDispatcherStopped = errors.New("events: dispatcher stopped")
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

type registry struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
}

func (r *registry) Subscribe(eventType EventType, handler EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listeners == nil {
		r.listeners = make(map[EventType][]EventHandler)
	}
	r.listeners[eventType] = append(r.listeners[eventType], handler)
}

func (r *registry) handlers(eventType EventType) []EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventHandler{}, r.listeners[eventType]...)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	registry
	logger *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher that runs handlers inline.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	return &inMemoryDispatcher{logger: logger}
}

// Publish synchronously invokes handlers for the given event.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	for _, handler := range d.handlers(event.Type) {
		// continue processing other handlers despite errors
		runHandler(ctx, d.logger, handler, event)
	}
	return nil
}

// AsyncDispatcher is the post-commit hook queue: Publish enqueues and
// returns, and a fixed pool of workers runs the handlers in the background.
type AsyncDispatcher struct {
	registry
	logger         *zap.Logger
	metrics        *observability.Metrics
	handlerTimeout time.Duration
	workers        int

	queue   chan Event
	mu      sync.RWMutex
	stopped bool
	started sync.Once
	wg      sync.WaitGroup
}

// NewAsyncDispatcher builds a dispatcher with a bounded queue.
func NewAsyncDispatcher(queueSize, workers int, handlerTimeout time.Duration, logger *zap.Logger, metrics *observability.Metrics) *AsyncDispatcher {
	if queueSize <= 0 {
		queueSize = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &AsyncDispatcher{
		logger:         logger,
		metrics:        metrics,
		handlerTimeout: handlerTimeout,
		workers:        workers,
		queue:          make(chan Event, queueSize),
	}
}

// Publish enqueues event without blocking. Handlers run detached from ctx's
// cancellation so a finished request does not abort its notifications.
// A full queue drops the event with ErrQueueFull; nothing replays it.
func (d *AsyncDispatcher) Publish(_ context.Context, event Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return ErrDispatcherStopped
	}
	select {
	case d.queue <- event:
		d.metrics.SetQueueDepth(len(d.queue))
		return nil
	default:
		return fmt.Errorf("%w: dropping %s for ticket %s", ErrQueueFull, event.Type, event.TicketID)
	}
}

// Start launches the workers. Calling it more than once has no effect.
func (d *AsyncDispatcher) Start() {
	d.started.Do(func() {
		for i := 0; i < d.workers; i++ {
			d.wg.Add(1)
			go d.work()
		}
	})
}

// Stop rejects further events and waits for queued ones to drain or ctx to end.
func (d *AsyncDispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *AsyncDispatcher) work() {
	defer d.wg.Done()
	for event := range d.queue {
		d.metrics.SetQueueDepth(len(d.queue))
		for _, handler := range d.handlers(event.Type) {
			d.runOne(handler, event)
		}
	}
}

func (d *AsyncDispatcher) runOne(handler EventHandler, event Event) {
	ctx := context.Background()
	if d.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.handlerTimeout)
		defer cancel()
	}
	runHandler(ctx, d.logger, handler, event)
}

// runHandler isolates one handler: errors and panics are logged and swallowed.
func runHandler(ctx context.Context, logger *zap.Logger, handler EventHandler, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Any("panic", rec))
		}
	}()
	if err := handler(ctx, event); err != nil {
		logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}
