// Package board implements drag-and-drop reordering of the kanban board:
// the pure reorder policy, the drag session controller and the single-shot
// commit of a finished gesture.
package board

import "kanflow/domain"

// Reorder returns the working list after hovering the active task over target.
// The input is never modified; a fresh slice is always returned.
func Reorder(working []domain.Task, activeID string, target domain.Target) []domain.Task {
	out := domain.CloneTasks(working)
	from := indexOf(out, activeID)
	if from < 0 {
		return out
	}

	switch target.Kind() {
	case domain.TargetTask:
		overID := target.TaskID()
		if overID == activeID {
			return out
		}
		to := indexOf(out, overID)
		if to < 0 {
			return out
		}
		if out[from].Status == out[to].Status {
			return move(out, from, to)
		}
		active := out[from]
		active.Status = out[to].Status
		rest := append(out[:from:from], out[from+1:]...)
		return insert(rest, indexOf(rest, overID), active)
	case domain.TargetColumn:
		if !target.Status().Valid() {
			return out
		}
		out[from].Status = target.Status()
	}
	return out
}

// NeighbourOrder computes an order key for id that places it between its
// column neighbours in list. A task alone in its column keeps its order.
// Between two neighbours it takes the midpoint, so each insert into the same
// gap halves it. A float64 gap of 1 survives about 50 such inserts; past that
// the keys collide and a reload orders the tied tasks by creation time.
func NeighbourOrder(list []domain.Task, id string) float64 {
	idx := indexOf(list, id)
	if idx < 0 {
		return 0
	}
	status := list[idx].Status
	var prev, next *domain.Task
	for i := idx - 1; i >= 0; i-- {
		if list[i].Status == status {
			prev = &list[i]
			break
		}
	}
	for i := idx + 1; i < len(list); i++ {
		if list[i].Status == status {
			next = &list[i]
			break
		}
	}
	switch {
	case prev != nil && next != nil:
		return (prev.Order + next.Order) / 2
	case prev != nil:
		return prev.Order + 1
	case next != nil:
		return next.Order - 1
	}
	return list[idx].Order
}

// Move is the outcome of a complete gesture.
type Move struct {
	TaskID  string
	Status  domain.Status
	Order   float64
	Working []domain.Task
}

// Plan applies a complete gesture at once. It reports false when the gesture
// is a no-op: no target, a self-drop or an unknown active task.
func Plan(list []domain.Task, activeID string, target domain.Target) (Move, bool) {
	if target.Kind() == domain.TargetNone {
		return Move{}, false
	}
	if target.Kind() == domain.TargetTask && target.TaskID() == activeID {
		return Move{}, false
	}
	working := Reorder(list, activeID, target)
	idx := indexOf(working, activeID)
	if idx < 0 {
		return Move{}, false
	}
	status := resolveStatus(working, idx, target)
	if status.Valid() {
		working[idx].Status = status
		working[idx].Order = NeighbourOrder(working, activeID)
	}
	return Move{TaskID: activeID, Status: status, Order: working[idx].Order, Working: working}, true
}

// resolveStatus picks the final column of the active task at idx. A task
// target missing from a stale list falls back to the active task's status.
func resolveStatus(working []domain.Task, idx int, target domain.Target) domain.Status {
	switch target.Kind() {
	case domain.TargetTask:
		if over := indexOf(working, target.TaskID()); over >= 0 {
			return working[over].Status
		}
	case domain.TargetColumn:
		return target.Status()
	}
	return working[idx].Status
}

func indexOf(list []domain.Task, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}

// move removes the element at from and reinserts it at to.
func move(list []domain.Task, from, to int) []domain.Task {
	if from == to {
		return list
	}
	item := list[from]
	rest := append(list[:from:from], list[from+1:]...)
	return insert(rest, to, item)
}

func insert(list []domain.Task, at int, item domain.Task) []domain.Task {
	if at < 0 || at > len(list) {
		at = len(list)
	}
	out := make([]domain.Task, 0, len(list)+1)
	out = append(out, list[:at]...)
	out = append(out, item)
	return append(out, list[at:]...)
}
