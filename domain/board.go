package domain

// ItemKind discriminates what a drag gesture moved.
type ItemKind string

const (
	KindList ItemKind = "list"
	KindTask ItemKind = "task"
)

// Task is a single card on the board.
type Task struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	ListID   string `json:"listId"`
	Position int    `json:"position"`
}

// TaskList is one ordered column of tasks.
type TaskList struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Position int    `json:"position"`
	Tasks    []Task `json:"tasks"`
}

// Board is the ordered collection of task lists. Order of the slices is the
// display order; Position fields mirror the persisted values.
type Board struct {
	Lists []TaskList `json:"lists"`
}

// FindList returns the index of the list with the given id, or -1.
func (b Board) FindList(id string) int {
	for i := range b.Lists {
		if b.Lists[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of the board. Mutating the copy never affects
// the original.
func (b Board) Clone() Board {
	if b.Lists == nil {
		return Board{}
	}
	lists := make([]TaskList, len(b.Lists))
	for i, l := range b.Lists {
		tasks := make([]Task, len(l.Tasks))
		copy(tasks, l.Tasks)
		l.Tasks = tasks
		lists[i] = l
	}
	return Board{Lists: lists}
}

// DragLocation identifies one end of a drag gesture: the container the item
// sits in and its index within that container. For list drags the container
// is the board itself and ContainerID is ignored.
type DragLocation struct {
	ContainerID string `json:"containerId"`
	Index       int    `json:"index"`
}

// DragEvent describes a completed drag gesture. A nil Destination means the
// item was dropped outside any valid target.
type DragEvent struct {
	Kind        ItemKind      `json:"itemKind"`
	Source      DragLocation  `json:"source"`
	Destination *DragLocation `json:"destination"`
}

// PositionUpdate is a single persistence instruction produced by a reorder.
// ListID names the owning list for task updates and is empty for list
// updates.
type PositionUpdate struct {
	Kind     ItemKind `json:"itemKind"`
	ID       string   `json:"id"`
	Position int      `json:"position"`
	ListID   string   `json:"listId,omitempty"`
}
