package board

import "kanflow/domain"

// State of a drag session.
type State int

const (
	Idle State = iota
	Dragging
	Committing
)

func (s State) String() string {
	switch s {
	case Dragging:
		return "dragging"
	case Committing:
		return "committing"
	default:
		return "idle"
	}
}

// Controller owns the lifecycle of one drag gesture at a time. Its methods
// must be called from a single goroutine, in the order input events arrive.
type Controller struct {
	store  *Store
	commit CommitStep

	state    State
	activeID string
	hover    domain.Target
	working  []domain.Task
	base     uint64
}

// NewController creates an idle controller over store.
func NewController(store *Store, commit CommitStep) *Controller {
	return &Controller{store: store, commit: commit}
}

// State returns the current session state.
func (c *Controller) State() State { return c.state }

// Active returns the dragged task id, empty when idle.
func (c *Controller) Active() string { return c.activeID }

// Hovering returns the last hover target.
func (c *Controller) Hovering() domain.Target { return c.hover }

// Working returns the list to render: the working copy while dragging,
// otherwise the confirmed list.
func (c *Controller) Working() []domain.Task {
	if c.state == Dragging {
		return domain.CloneTasks(c.working)
	}
	return c.store.Snapshot()
}

// Start picks up taskID. It is a no-op returning false if the id is unknown
// or a gesture is already in progress.
func (c *Controller) Start(taskID string) bool {
	if c.state != Idle {
		return false
	}
	snapshot, version := c.store.Current()
	if indexOf(snapshot, taskID) < 0 {
		return false
	}
	c.state = Dragging
	c.activeID = taskID
	c.hover = domain.NoTarget()
	c.working = snapshot
	c.base = version
	return true
}

// Hover moves the dragged task over target and recomputes the working list.
// It never talks to the task store. A working list older than the board's
// confirmed list is rebuilt from it first.
func (c *Controller) Hover(target domain.Target) {
	if c.state != Dragging {
		return
	}
	if target.Kind() == domain.TargetTask && target.TaskID() == c.activeID {
		return
	}
	if tasks, version := c.store.Current(); version != c.base {
		c.working, c.base = tasks, version
	}
	c.hover = target
	if target.Kind() == domain.TargetNone {
		return
	}
	c.working = Reorder(c.working, c.activeID, target)
}

// End releases the dragged task over target. Without a target the working
// list is discarded. A target equal to the last hover is already reflected in
// the working list. Otherwise the result is published to the store and the
// commit step runs exactly once. If the board was reloaded during the gesture
// the drop is replayed on the reloaded list. The session is idle again on
// return.
func (c *Controller) End(target domain.Target) error {
	if c.state != Dragging {
		return nil
	}
	activeID, working, base := c.activeID, c.working, c.base
	defer c.reset()

	if target.Kind() == domain.TargetNone {
		return nil
	}
	if target.Kind() == domain.TargetTask && target.TaskID() == activeID {
		return nil
	}
	if target != c.hover {
		working = Reorder(working, activeID, target)
	}

	var (
		found  bool
		status domain.Status
		order  float64
	)
	c.store.Update(func(current []domain.Task, version uint64) ([]domain.Task, bool) {
		list := working
		if version != base {
			list = Reorder(current, activeID, target)
		}
		idx := indexOf(list, activeID)
		if idx < 0 {
			return nil, false
		}
		found = true
		status = resolveStatus(list, idx, target)
		if !status.Valid() || list[idx].External() {
			// rejected by the commit step before any network call
			order = list[idx].Order
			return nil, false
		}
		list[idx].Status = status
		list[idx].Order = NeighbourOrder(list, activeID)
		order = list[idx].Order
		return list, true
	})
	if !found {
		return nil
	}
	c.state = Committing
	return c.commit.Commit(activeID, status, order)
}

// Cancel abandons the current gesture.
func (c *Controller) Cancel() {
	_ = c.End(domain.NoTarget())
}

func (c *Controller) reset() {
	c.state = Idle
	c.activeID = ""
	c.hover = domain.NoTarget()
	c.working = nil
	c.base = 0
}
