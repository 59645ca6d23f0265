package consts

// BoardID is the partition key shared by every row of the single-board
// deployment.
const BoardID = "board"

// BoardCacheKey holds the cached assembled board snapshot in Redis.
const BoardCacheKey = "board:snapshot"

// Change notification channels, one per entity kind.
const (
	ListsChannel = "board:lists"
	TasksChannel = "board:tasks"
)

// SSEDataPrefix starts every server-sent snapshot frame.
const SSEDataPrefix = "data: "
