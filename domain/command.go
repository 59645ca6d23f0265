package domain

import (
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

// Entity kinds carried by commands and change notifications.
const (
	EntityList = "list"
	EntityTask = "task"
)

// Command types understood by the write pipeline.
const (
	CommandCreateList = "create-list"
	CommandDeleteList = "delete-list"
	CommandMoveList   = "move-list"
	CommandCreateTask = "create-task"
	CommandDeleteTask = "delete-task"
	CommandMoveTask   = "move-task"
)

// CreateListData is the payload of a create-list command.
type CreateListData struct {
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// MoveListData is the payload of a move-list command.
type MoveListData struct {
	Position int `json:"position"`
}

// CreateTaskData is the payload of a create-task command. It carries no
// position: the task lands at the end of its list as of apply time.
type CreateTaskData struct {
	Content string `json:"content"`
	ListID  string `json:"listId"`
}

// MoveTaskData is the payload of a move-task command. ListID is the list the
// task belongs to after the move.
type MoveTaskData struct {
	Position int    `json:"position"`
	ListID   string `json:"listId"`
}

// Command represents a single write request against the board.
type Command struct {
	// ID mirrors IdempotencyKey once the command is finalized for enqueue.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey,omitempty"`
	EntityID       string                 `json:"entityId"`
	EntityType     string                 `json:"entityType"`
	Type           string                 `json:"type"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp,omitempty"`
}

// CommandEnvelope wraps a command with the board it targets for queue
// transport.
type CommandEnvelope struct {
	BoardID string  `json:"boardId"`
	Command Command `json:"command"`
}

// NewCommand builds a command for the given entity with a marshaled payload.
// A nil data leaves the payload empty.
func NewCommand(entityType, cmdType, entityID string, data any) (Command, error) {
	cmd := Command{EntityID: entityID, EntityType: entityType, Type: cmdType}
	if data != nil {
		raw, err := sonic.Marshal(data)
		if err != nil {
			return Command{}, err
		}
		cmd.Data = raw
	}
	return cmd, nil
}

var lastTimestamp int64

// NextTimestamp returns a strictly increasing unix-nano timestamp shared by
// every command producer in the process. Commands applied against the same
// row are ordered by it.
func NextTimestamp() int64 {
	return NextTimestampRange(1)
}

// NextTimestampRange reserves count consecutive timestamps and returns the
// first. A non-positive count returns 0 without reserving anything.
func NextTimestampRange(count int) int64 {
	if count <= 0 {
		return 0
	}
	n := int64(count)
	for {
		last := atomic.LoadInt64(&lastTimestamp)
		start := time.Now().UnixNano()
		if start <= last {
			start = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, start+n-1) {
			return start
		}
	}
}
