package domain

import (
	"sort"
	"strings"
	"time"
)

// Status is the board column a task belongs to.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusReview, StatusDone}

// Valid reports whether s is one of the four board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// Column returns the display index of the status, or -1 when it is not a board column.
func (s Status) Column() int {
	for i, st := range Statuses {
		if st == s {
			return i
		}
	}
	return -1
}

// ParseStatus converts raw input to a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", ErrInvalidStatus
	}
	return s, nil
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// ParsePriority converts raw input to a Priority. Empty input yields medium.
func ParsePriority(raw string) (Priority, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return PriorityMedium, nil
	}
	p := Priority(raw)
	if !p.Valid() {
		return "", ErrInvalidTask
	}
	return p, nil
}

// Task represents a single board item.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	Assignee    string     `json:"assignee,omitempty"`
	Labels      []string   `json:"labels"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	Order       float64    `json:"order"`
	Source      string     `json:"source,omitempty"`
	URL         string     `json:"url,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// External reports whether the task was imported from an integration.
func (t Task) External() bool {
	return t.Source != "" || IsExternalID(t.ID)
}

// Clone returns a deep copy so callers may mutate labels and due date freely.
func (t Task) Clone() Task {
	out := t
	if t.Labels != nil {
		out.Labels = append([]string(nil), t.Labels...)
	}
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	return out
}

// IsExternalID reports whether id names a task owned by a third-party integration.
// Native ids are UUIDs; external ids are "<source>:<ref>".
func IsExternalID(id string) bool {
	return strings.Contains(id, ":")
}

// ExternalID builds the id of an imported task.
func ExternalID(source, ref string) string {
	return source + ":" + ref
}

// CloneTasks deep copies a task list.
func CloneTasks(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i := range tasks {
		out[i] = tasks[i].Clone()
	}
	return out
}

// SortTasks orders tasks by column, then order key, then creation time.
func SortTasks(tasks []Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if ca, cb := a.Status.Column(), b.Status.Column(); ca != cb {
			return ca < cb
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
