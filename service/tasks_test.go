package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"kanflow/domain"
)

type memStore struct {
	mu      sync.Mutex
	tasks   map[string][]domain.Task
	updates int
	block   bool
	err     error
}

func newMemStore(tasks ...domain.Task) *memStore {
	return &memStore{tasks: map[string][]domain.Task{"u1": tasks}}
}

func (m *memStore) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return domain.CloneTasks(m.tasks[userID]), nil
}

func (m *memStore) GetTask(ctx context.Context, userID, id string) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks[userID] {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, domain.ErrNotFound
}

func (m *memStore) CreateTask(ctx context.Context, userID string, t domain.Task) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[userID] = append(m.tasks[userID], t)
	return t, nil
}

func (m *memStore) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) (domain.Task, error) {
	m.mu.Lock()
	m.updates++
	block := m.block
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return domain.Task{}, ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.tasks[userID]
	for i := range list {
		if list[i].ID == id {
			list[i] = patch.Apply(list[i], time.Now())
			return list[i], nil
		}
	}
	return domain.Task{}, domain.ErrNotFound
}

func (m *memStore) DeleteTask(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.tasks[userID]
	for i := range list {
		if list[i].ID == id {
			m.tasks[userID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type staticExternal []domain.Task

func (s staticExternal) Fetch(context.Context) []domain.Task { return domain.CloneTasks(s) }

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.TaskEvent
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev domain.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func boardTasks() []domain.Task {
	return []domain.Task{
		{ID: "t1", Title: "T1", Status: domain.StatusTodo, Order: 1},
		{ID: "t3", Title: "T3", Status: domain.StatusTodo, Order: 2},
		{ID: "t2", Title: "T2", Status: domain.StatusInProgress, Order: 5},
	}
}

func TestListMergesExternalTasks(t *testing.T) {
	ext := staticExternal{{ID: "github:o/r#1", Title: "issue", Status: domain.StatusTodo, Source: "github", Order: 0}}
	svc := New(newMemStore(boardTasks()...), ext, nil, nil)

	tasks, err := svc.List(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "github:o/r#1" || tasks[3].ID != "t2" {
		t.Fatalf("unexpected order: %v", []string{tasks[0].ID, tasks[1].ID, tasks[2].ID, tasks[3].ID})
	}
}

func TestCreateAppendsToColumn(t *testing.T) {
	pub := &recordingPublisher{}
	svc := New(newMemStore(boardTasks()...), nil, pub, nil)
	svc.newID = func() string { return "new-id" }

	created, err := svc.Create(context.Background(), "u1", domain.NewTask{Title: "  Write docs "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID != "new-id" || created.Title != "Write docs" || created.Status != domain.StatusTodo || created.Order != 3 {
		t.Fatalf("unexpected task: %+v", created)
	}
	if created.CreatedAt.IsZero() || created.Priority != domain.PriorityMedium {
		t.Fatalf("defaults not applied: %+v", created)
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.TaskCreated {
		t.Fatalf("expected created event, got %+v", pub.events)
	}

	review, err := svc.Create(context.Background(), "u1", domain.NewTask{Title: "R", Status: domain.StatusReview})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if review.Order != 0 {
		t.Fatalf("first task of a column should get order 0, got %v", review.Order)
	}

	if _, err := svc.Create(context.Background(), "u1", domain.NewTask{Title: " "}); !errors.Is(err, domain.ErrInvalidTask) {
		t.Fatalf("expected invalid task, got %v", err)
	}
}

func TestUpdateRejectsExternalBeforeStore(t *testing.T) {
	store := newMemStore(boardTasks()...)
	svc := New(store, nil, nil, nil)
	status := domain.StatusDone
	_, err := svc.Update(context.Background(), "u1", "github:o/r#1", domain.TaskPatch{Status: &status})
	if !errors.Is(err, domain.ErrExternalTask) {
		t.Fatalf("expected ErrExternalTask, got %v", err)
	}
	if err := svc.Delete(context.Background(), "u1", "sentry:WEB-1"); !errors.Is(err, domain.ErrExternalTask) {
		t.Fatalf("expected ErrExternalTask on delete, got %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("store must not be called")
	}
}

func TestUpdateInvalidStatus(t *testing.T) {
	store := newMemStore(boardTasks()...)
	svc := New(store, nil, nil, nil)
	archived := domain.Status("archived")
	if _, err := svc.Update(context.Background(), "u1", "t1", domain.TaskPatch{Status: &archived}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("store must not be called")
	}
}

func TestUpdateTimeout(t *testing.T) {
	store := newMemStore(boardTasks()...)
	store.block = true
	svc := New(store, nil, nil, nil)
	svc.SetTimeout(20 * time.Millisecond)

	_, err := svc.Update(context.Background(), "u1", "t1", domain.StatusPatch(domain.StatusDone, 0))
	if !errors.Is(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestMoveOntoTaskInOtherColumn(t *testing.T) {
	store := newMemStore(boardTasks()...)
	pub := &recordingPublisher{}
	svc := New(store, nil, pub, nil)

	moved, ok, err := svc.Move(context.Background(), "u1", "t1", domain.TaskTarget("t2"))
	if err != nil || !ok {
		t.Fatalf("move: ok=%v err=%v", ok, err)
	}
	if moved.Status != domain.StatusInProgress || moved.Order != 4 {
		t.Fatalf("unexpected moved task: %+v", moved)
	}
	if store.updates != 1 {
		t.Fatalf("expected exactly one update, got %d", store.updates)
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.TaskUpdated {
		t.Fatalf("expected one update event")
	}
}

func TestMoveNoops(t *testing.T) {
	store := newMemStore(boardTasks()...)
	svc := New(store, nil, nil, nil)
	ctx := context.Background()

	if _, ok, err := svc.Move(ctx, "u1", "t1", domain.NoTarget()); ok || err != nil {
		t.Fatalf("no target: ok=%v err=%v", ok, err)
	}
	if _, ok, err := svc.Move(ctx, "u1", "t1", domain.TaskTarget("t1")); ok || err != nil {
		t.Fatalf("self drop: ok=%v err=%v", ok, err)
	}
	if _, _, err := svc.Move(ctx, "u1", "missing", domain.ColumnTarget(domain.StatusDone)); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := svc.Move(ctx, "u1", "t1", domain.ColumnTarget("archived")); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, _, err := svc.Move(ctx, "u1", "github:o/r#9", domain.ColumnTarget(domain.StatusDone)); !errors.Is(err, domain.ErrExternalTask) {
		t.Fatalf("expected external rejection, got %v", err)
	}
	if store.updates != 0 {
		t.Fatalf("no-op moves must not update, got %d", store.updates)
	}
}

func TestPublishFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{err: errors.New("queue down")}
	svc := New(newMemStore(boardTasks()...), nil, pub, logger)

	if err := svc.Delete(context.Background(), "u1", "t3"); err != nil {
		t.Fatalf("delete should succeed despite publish failure: %v", err)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Message != "service.publish.failed" {
		t.Fatalf("expected publish failure log, got %+v", entry)
	}
}

func TestListStoreError(t *testing.T) {
	store := newMemStore()
	store.err = domain.ErrPermissionDenied
	svc := New(store, staticExternal{}, nil, nil)
	if _, err := svc.List(context.Background(), "u1"); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
}
