package board

import (
	"context"
	"sync"

	"kanflow/domain"
)

// TaskSource loads the authoritative task list.
type TaskSource interface {
	ListTasks(ctx context.Context) ([]domain.Task, error)
}

// Store holds the last confirmed task list of a board. The list is only ever
// replaced as a whole so readers always see a consistent snapshot.
type Store struct {
	source TaskSource

	mu       sync.RWMutex
	tasks    []domain.Task
	version  uint64
	onChange func(version uint64)
}

// NewStore creates an empty store backed by source.
func NewStore(source TaskSource) *Store {
	return &Store{source: source}
}

// OnChange registers a callback invoked after every replacement.
func (s *Store) OnChange(fn func(version uint64)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Snapshot returns a copy of the current list.
func (s *Store) Snapshot() []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneTasks(s.tasks)
}

// Version increases on every replacement.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Current returns a copy of the list together with its version.
func (s *Store) Current() ([]domain.Task, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneTasks(s.tasks), s.version
}

// Find returns a copy of the task with the given id.
func (s *Store) Find(id string) (domain.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.tasks, id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return domain.Task{}, false
}

// Replace swaps in a new list and returns the new version.
func (s *Store) Replace(tasks []domain.Task) uint64 {
	v, _ := s.Update(func([]domain.Task, uint64) ([]domain.Task, bool) {
		return tasks, true
	})
	return v
}

// Update runs fn on a copy of the list while holding the write lock, so no
// Reload or Replace can land between the read and the write. The result of fn
// is stored only when it reports true. Update returns the resulting version
// and whether the list was replaced. fn must not call back into the store.
func (s *Store) Update(fn func(tasks []domain.Task, version uint64) ([]domain.Task, bool)) (uint64, bool) {
	s.mu.Lock()
	next, ok := fn(domain.CloneTasks(s.tasks), s.version)
	if !ok {
		v := s.version
		s.mu.Unlock()
		return v, false
	}
	next = domain.CloneTasks(next)
	if next == nil {
		next = []domain.Task{}
	}
	s.tasks = next
	s.version++
	v, cb := s.version, s.onChange
	s.mu.Unlock()

	if cb != nil {
		cb(v)
	}
	return v, true
}

// ApplyStatus optimistically sets status and order of one task. It reports
// false when the task is not in the list.
func (s *Store) ApplyStatus(id string, status domain.Status, order float64) bool {
	found := false
	s.Update(func(list []domain.Task, _ uint64) ([]domain.Task, bool) {
		i := indexOf(list, id)
		if i < 0 {
			return nil, false
		}
		found = true
		if list[i].Status == status && list[i].Order == order {
			return nil, false
		}
		list[i].Status = status
		list[i].Order = order
		return list, true
	})
	return found
}

// Reload replaces the list with the source's current state.
func (s *Store) Reload(ctx context.Context) error {
	tasks, err := s.source.ListTasks(ctx)
	if err != nil {
		return err
	}
	tasks = domain.CloneTasks(tasks)
	domain.SortTasks(tasks)
	s.Replace(tasks)
	return nil
}
