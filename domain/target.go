package domain

// TargetKind distinguishes what a drag gesture is hovering over.
type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetTask
	TargetColumn
)

func (k TargetKind) String() string {
	switch k {
	case TargetTask:
		return "task"
	case TargetColumn:
		return "column"
	default:
		return "none"
	}
}

// Target is where a dragged task currently sits: another task, a column, or nowhere.
type Target struct {
	kind   TargetKind
	taskID string
	status Status
}

func NoTarget() Target { return Target{} }

func TaskTarget(id string) Target { return Target{kind: TargetTask, taskID: id} }

func ColumnTarget(status Status) Target { return Target{kind: TargetColumn, status: status} }

func (t Target) Kind() TargetKind { return t.kind }

// TaskID is set for task targets only.
func (t Target) TaskID() string { return t.taskID }

// Status is set for column targets only.
func (t Target) Status() Status { return t.status }

// ParseTarget builds a Target from its wire form.
func ParseTarget(kind, id, status string) (Target, error) {
	switch kind {
	case "", "none":
		return NoTarget(), nil
	case "task":
		if id == "" {
			return Target{}, ErrInvalidTask
		}
		return TaskTarget(id), nil
	case "column":
		st, err := ParseStatus(status)
		if err != nil {
			return Target{}, err
		}
		return ColumnTarget(st), nil
	}
	return Target{}, ErrInvalidTask
}
