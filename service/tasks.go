// Package service holds the task use cases shared by the HTTP handlers.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"kanflow/board"
	"kanflow/domain"
)

// DefaultTimeout bounds every call into the task store.
const DefaultTimeout = 10 * time.Second

// TaskStore is the authoritative per-user task persistence.
type TaskStore interface {
	ListTasks(ctx context.Context, userID string) ([]domain.Task, error)
	GetTask(ctx context.Context, userID, id string) (domain.Task, error)
	CreateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, userID, id string) error
}

// ExternalSource supplies read-only tasks from integrations.
type ExternalSource interface {
	Fetch(ctx context.Context) []domain.Task
}

// Publisher receives an event after each successful write.
type Publisher interface {
	Publish(ctx context.Context, ev domain.TaskEvent) error
}

// Tasks implements listing, editing and moving tasks for one user at a time.
type Tasks struct {
	store    TaskStore
	external ExternalSource
	events   Publisher
	logger   *log.Logger
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// New creates the task service. external and events may be nil.
func New(store TaskStore, external ExternalSource, events Publisher, logger *log.Logger) *Tasks {
	if store == nil {
		panic("service.New: store is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Tasks{
		store:    store,
		external: external,
		events:   events,
		logger:   logger,
		timeout:  DefaultTimeout,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetTimeout overrides the store call timeout.
func (s *Tasks) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// List returns native and external tasks in board order.
func (s *Tasks) List(ctx context.Context, userID string) ([]domain.Task, error) {
	native, err := s.native(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.external != nil {
		native = append(native, s.external.Fetch(ctx)...)
	}
	domain.SortTasks(native)
	return native, nil
}

func (s *Tasks) native(ctx context.Context, userID string) ([]domain.Task, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	tasks, err := s.store.ListTasks(cctx, userID)
	if err != nil {
		return nil, timeoutErr(cctx, err)
	}
	tasks = domain.CloneTasks(tasks)
	domain.SortTasks(tasks)
	return tasks, nil
}

// Create validates in and appends the new task to the end of its column.
func (s *Tasks) Create(ctx context.Context, userID string, in domain.NewTask) (domain.Task, error) {
	in, err := in.Normalize()
	if err != nil {
		return domain.Task{}, err
	}
	existing, err := s.native(ctx, userID)
	if err != nil {
		return domain.Task{}, err
	}
	now := s.now().UTC()
	t := domain.Task{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		Priority:    in.Priority,
		Assignee:    in.Assignee,
		Labels:      in.Labels,
		DueDate:     in.DueDate,
		Order:       nextOrder(existing, in.Status),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	created, err := s.store.CreateTask(cctx, userID, t)
	if err != nil {
		return domain.Task{}, timeoutErr(cctx, err)
	}
	s.publish(ctx, domain.TaskCreated, userID, created.ID, &created)
	return created, nil
}

// Update applies patch. External tasks are rejected before the store is called.
func (s *Tasks) Update(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	if domain.IsExternalID(id) {
		return domain.Task{}, fmt.Errorf("update %s: %w", id, domain.ErrExternalTask)
	}
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	updated, err := s.store.UpdateTask(cctx, userID, id, patch)
	if err != nil {
		return domain.Task{}, timeoutErr(cctx, err)
	}
	s.publish(ctx, domain.TaskUpdated, userID, id, &updated)
	return updated, nil
}

// Delete removes a native task.
func (s *Tasks) Delete(ctx context.Context, userID, id string) error {
	if domain.IsExternalID(id) {
		return fmt.Errorf("delete %s: %w", id, domain.ErrExternalTask)
	}
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.store.DeleteTask(cctx, userID, id); err != nil {
		return timeoutErr(cctx, err)
	}
	s.publish(ctx, domain.TaskDeleted, userID, id, nil)
	return nil
}

// Move applies a complete drag gesture server side with a single update. It
// reports false when the gesture is a no-op. Targets that are not native
// tasks of the user resolve like a stale target.
func (s *Tasks) Move(ctx context.Context, userID, taskID string, target domain.Target) (domain.Task, bool, error) {
	if domain.IsExternalID(taskID) {
		return domain.Task{}, false, fmt.Errorf("move %s: %w", taskID, domain.ErrExternalTask)
	}
	list, err := s.native(ctx, userID)
	if err != nil {
		return domain.Task{}, false, err
	}
	if target.Kind() != domain.TargetNone && !containsID(list, taskID) {
		return domain.Task{}, false, fmt.Errorf("move %s: %w", taskID, domain.ErrNotFound)
	}
	mv, ok := board.Plan(list, taskID, target)
	if !ok {
		return domain.Task{}, false, nil
	}
	if !mv.Status.Valid() {
		return domain.Task{}, false, fmt.Errorf("move %s to %q: %w", taskID, mv.Status, domain.ErrInvalidStatus)
	}
	updated, err := s.Update(ctx, userID, taskID, domain.StatusPatch(mv.Status, mv.Order))
	if err != nil {
		return domain.Task{}, false, err
	}
	return updated, true, nil
}

func (s *Tasks) publish(ctx context.Context, typ domain.EventType, userID, taskID string, t *domain.Task) {
	if s.events == nil {
		return
	}
	ev := domain.TaskEvent{Type: typ, UserID: userID, TaskID: taskID, Task: t, Time: s.now().UTC()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.WithError(err).WithFields(log.Fields{"task": taskID, "event": typ}).Warn("service.publish.failed")
	}
}

func nextOrder(tasks []domain.Task, status domain.Status) float64 {
	var max float64
	found := false
	for _, t := range tasks {
		if t.Status != status {
			continue
		}
		if !found || t.Order > max {
			max = t.Order
			found = true
		}
	}
	if !found {
		return 0
	}
	return max + 1
}

func containsID(tasks []domain.Task, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func timeoutErr(ctx context.Context, err error) error {
	if errors.Is(err, domain.ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return err
}
