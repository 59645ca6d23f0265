package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"boardsync/domain"
	"boardsync/internal/consts"
)

type backend interface {
	FetchBoard(ctx context.Context) (domain.Board, error)
	EnqueueCommands(ctx context.Context, cmds []domain.Command) error
}

// Cache wraps a Storage instance with a Redis-backed snapshot of the
// assembled board.
type Cache struct {
	*Storage
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL. A zero TTL disables snapshot writes, leaving only pass-through
// reads.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchBoard(ctx context.Context) (domain.Board, error) {
	if board, ok := c.loadBoardFromCache(ctx); ok {
		return board, nil
	}

	board, err := c.base.FetchBoard(ctx)
	if err != nil {
		return domain.Board{}, err
	}

	c.storeBoard(ctx, board)
	return board, nil
}

func (c *Cache) EnqueueCommands(ctx context.Context, cmds []domain.Command) error {
	if err := c.base.EnqueueCommands(ctx, cmds); err != nil {
		return err
	}

	c.Evict(ctx)
	return nil
}

// Evict drops the cached snapshot so the next fetch reassembles the board
// from the tables.
func (c *Cache) Evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, consts.BoardCacheKey).Result()
}

func (c *Cache) loadBoardFromCache(ctx context.Context) (domain.Board, bool) {
	if c.redis == nil {
		return domain.Board{}, false
	}
	data, err := c.redis.Get(ctx, consts.BoardCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, consts.BoardCacheKey).Err()
		}
		return domain.Board{}, false
	}
	var board domain.Board
	if err := sonic.Unmarshal(data, &board); err != nil {
		_ = c.redis.Del(ctx, consts.BoardCacheKey).Err()
		return domain.Board{}, false
	}
	return board, true
}

func (c *Cache) storeBoard(ctx context.Context, board domain.Board) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(board)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, consts.BoardCacheKey, data, c.ttl).Err()
}
