package domain

import (
	"strings"
	"time"
)

// NewTask carries the fields accepted when creating a task.
type NewTask struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status,omitempty"`
	Priority    Priority   `json:"priority,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
}

// Normalize trims input and fills defaults. It returns ErrInvalidTask or
// ErrInvalidStatus when the input cannot form a task.
func (n NewTask) Normalize() (NewTask, error) {
	n.Title = strings.TrimSpace(n.Title)
	if n.Title == "" {
		return NewTask{}, ErrInvalidTask
	}
	n.Description = strings.TrimSpace(n.Description)
	n.Assignee = strings.TrimSpace(n.Assignee)
	if n.Status == "" {
		n.Status = StatusTodo
	}
	if !n.Status.Valid() {
		return NewTask{}, ErrInvalidStatus
	}
	p, err := ParsePriority(string(n.Priority))
	if err != nil {
		return NewTask{}, err
	}
	n.Priority = p
	n.Labels = cleanLabels(n.Labels)
	return n, nil
}

// TaskPatch carries partial updates for a task. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Status      *Status    `json:"status,omitempty"`
	Priority    *Priority  `json:"priority,omitempty"`
	Assignee    *string    `json:"assignee,omitempty"`
	Labels      *[]string  `json:"labels,omitempty"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	ClearDue    bool       `json:"clearDueDate,omitempty"`
	Order       *float64   `json:"order,omitempty"`
}

// StatusPatch is the payload of a board commit.
func StatusPatch(status Status, order float64) TaskPatch {
	return TaskPatch{Status: &status, Order: &order}
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		p.Assignee == nil && p.Labels == nil && p.DueDate == nil && !p.ClearDue && p.Order == nil
}

// Validate rejects empty patches and values outside the task invariants.
func (p TaskPatch) Validate() error {
	if p.Empty() {
		return ErrInvalidTask
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrInvalidTask
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ErrInvalidTask
	}
	return nil
}

// Apply returns a copy of t with the patch applied. UpdatedAt is set to now.
func (p TaskPatch) Apply(t Task, now time.Time) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = strings.TrimSpace(*p.Description)
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Assignee != nil {
		out.Assignee = strings.TrimSpace(*p.Assignee)
	}
	if p.Labels != nil {
		out.Labels = cleanLabels(*p.Labels)
	}
	if p.ClearDue {
		out.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		out.DueDate = &d
	}
	if p.Order != nil {
		out.Order = *p.Order
	}
	out.UpdatedAt = now
	return out
}

func cleanLabels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, l := range in {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
