package storage

// Entity represents base table entity keys.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

const (
	EdmInt32 = "Edm.Int32"
	EdmInt64 = "Edm.Int64"
)

// ListEntity represents a task list row. ChangedAt is the timestamp of the
// last command applied to the row, unix nanos, stored as Edm.Int64.
type ListEntity struct {
	Entity
	Title         string `json:"Title,omitempty"`
	Position      int    `json:"Position"`
	ChangedAt     int64  `json:"ChangedAt,string"`
	ChangedAtType string `json:"ChangedAt@odata.type,omitempty"`
}

// ListUpdate carries partial updates for a list row.
type ListUpdate struct {
	Entity
	Title         *string `json:"Title,omitempty"`
	Position      *int    `json:"Position,omitempty"`
	ChangedAt     *int64  `json:"ChangedAt,omitempty,string"`
	ChangedAtType *string `json:"ChangedAt@odata.type,omitempty"`
}

// TaskEntity represents a task row.
type TaskEntity struct {
	Entity
	Content       string `json:"Content,omitempty"`
	ListID        string `json:"ListId"`
	Position      int    `json:"Position"`
	ChangedAt     int64  `json:"ChangedAt,string"`
	ChangedAtType string `json:"ChangedAt@odata.type,omitempty"`
}

// TaskUpdate carries partial updates for a task row.
type TaskUpdate struct {
	Entity
	Content       *string `json:"Content,omitempty"`
	ListID        *string `json:"ListId,omitempty"`
	Position      *int    `json:"Position,omitempty"`
	ChangedAt     *int64  `json:"ChangedAt,omitempty,string"`
	ChangedAtType *string `json:"ChangedAt@odata.type,omitempty"`
}
