package api

import (
	"context"

	"boardsync/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	FetchBoard(ctx context.Context) (domain.Board, error)
	EnqueueCommands(ctx context.Context, cmds []domain.Command) error
}

// Deduper prevents processing of duplicate commands.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, key string) (bool, error)
	// AddMany records the keys in one round trip and reports which were new.
	AddMany(ctx context.Context, keys []string) ([]bool, error)
	// Remove deletes a previously added key, used when downstream processing fails.
	Remove(ctx context.Context, key string) error
}
