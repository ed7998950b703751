package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"kanflow/domain"
)

// DefaultCommitTimeout bounds a single commit call.
const DefaultCommitTimeout = 10 * time.Second

var errCommitterClosed = errors.New("committer closed")

// TaskUpdater is the authoritative write collaborator.
type TaskUpdater interface {
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
}

// Notification is a transient, non-blocking message for the user.
type Notification struct {
	TaskID  string
	Message string
	Err     error
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// CommitStep persists the outcome of a finished gesture.
type CommitStep interface {
	Commit(taskID string, status domain.Status, order float64) error
}

type pendingCommit struct {
	cancel context.CancelFunc
}

// Committer issues exactly one update per finished gesture. Commits run in
// the background; a newer commit on the same task cancels the older one.
type Committer struct {
	store    *Store
	updater  TaskUpdater
	notifier Notifier
	logger   *log.Logger
	timeout  time.Duration

	mu       sync.Mutex
	inflight map[string]*pendingCommit
	closed   bool
	wg       sync.WaitGroup
}

// NewCommitter wires a commit step to its collaborators.
func NewCommitter(store *Store, updater TaskUpdater, notifier Notifier, logger *log.Logger) *Committer {
	if store == nil || updater == nil {
		panic("board.NewCommitter: store and updater are required")
	}
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Committer{
		store:    store,
		updater:  updater,
		notifier: notifier,
		logger:   logger,
		timeout:  DefaultCommitTimeout,
		inflight: make(map[string]*pendingCommit),
	}
}

// SetTimeout overrides the per-commit timeout.
func (c *Committer) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// Commit validates the final state, applies it to the store and starts the
// update call without waiting for it.
func (c *Committer) Commit(taskID string, status domain.Status, order float64) error {
	if err := c.validate(taskID, status); err != nil {
		c.notifier.Notify(Notification{TaskID: taskID, Message: "move rejected: " + err.Error(), Err: err})
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errCommitterClosed
	}
	c.store.ApplyStatus(taskID, status, order)
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	p := &pendingCommit{cancel: cancel}
	if prev, ok := c.inflight[taskID]; ok {
		prev.cancel()
	}
	c.inflight[taskID] = p
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, p, taskID, domain.StatusPatch(status, order))
	return nil
}

func (c *Committer) validate(taskID string, status domain.Status) error {
	if !status.Valid() {
		return fmt.Errorf("commit %s to %q: %w", taskID, status, domain.ErrInvalidStatus)
	}
	if domain.IsExternalID(taskID) {
		return fmt.Errorf("commit %s: %w", taskID, domain.ErrExternalTask)
	}
	if t, ok := c.store.Find(taskID); ok && t.External() {
		return fmt.Errorf("commit %s: %w", taskID, domain.ErrExternalTask)
	}
	return nil
}

func (c *Committer) run(ctx context.Context, p *pendingCommit, taskID string, patch domain.TaskPatch) {
	defer c.wg.Done()
	defer p.cancel()

	ctx, span := otel.Tracer("kanflow/board").Start(ctx, "board.commit")
	span.SetAttributes(attribute.String("task.id", taskID), attribute.String("task.status", string(*patch.Status)))
	defer span.End()

	start := time.Now()
	_, err := c.updater.UpdateTask(ctx, taskID, patch)
	superseded := c.finish(taskID, p)

	fields := log.Fields{"task": taskID, "status": *patch.Status, "elapsed_ms": durationToMillis(time.Since(start))}
	if err == nil {
		c.logger.WithFields(fields).Debug("board.commit.ok")
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if superseded {
		c.logger.WithFields(fields).WithError(err).Debug("board.commit.superseded")
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	c.logger.WithFields(fields).WithError(err).Warn("board.commit.failed")
	c.notifier.Notify(Notification{TaskID: taskID, Message: "could not save move: " + err.Error(), Err: err})

	reloadCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if rerr := c.store.Reload(reloadCtx); rerr != nil {
		c.logger.WithError(rerr).Error("board.reload.failed")
		c.notifier.Notify(Notification{Message: "could not reload board: " + rerr.Error(), Err: rerr})
	}
}

// finish clears the in-flight entry and reports whether p was superseded by a
// newer commit or cancelled by Close.
func (c *Committer) finish(taskID string, p *pendingCommit) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.inflight[taskID]; ok && cur == p {
		delete(c.inflight, taskID)
		return c.closed
	}
	return true
}

// Pending reports how many commits are still in flight.
func (c *Committer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Wait blocks until all started commits have finished.
func (c *Committer) Wait() {
	c.wg.Wait()
}

// Close cancels in-flight commits and waits for them.
func (c *Committer) Close() {
	c.mu.Lock()
	c.closed = true
	for _, p := range c.inflight {
		p.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
