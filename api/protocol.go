package api

const (
	postCommandMaxSize = 64 * 1024 // 64 KiB
	dragEventMaxSize   = 8 * 1024  // 8 KiB
)

// POST /api/commands and /api/board/drag response body
type postCommandResponse struct {
	IdempotencyKeys []string `json:"idempotencyKeys,omitempty"`
	Error           string   `json:"error,omitempty"`
}
