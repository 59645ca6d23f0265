package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"boardsync/domain"
	"boardsync/internal/consts"
)

type stubBackend struct {
	fetchBoardFn      func(ctx context.Context) (domain.Board, error)
	enqueueCommandsFn func(ctx context.Context, cmds []domain.Command) error
}

func (s *stubBackend) FetchBoard(ctx context.Context) (domain.Board, error) {
	if s.fetchBoardFn == nil {
		return domain.Board{}, errors.New("unexpected FetchBoard call")
	}
	return s.fetchBoardFn(ctx)
}

func (s *stubBackend) EnqueueCommands(ctx context.Context, cmds []domain.Command) error {
	if s.enqueueCommandsFn == nil {
		return errors.New("unexpected EnqueueCommands call")
	}
	return s.enqueueCommandsFn(ctx, cmds)
}

func cacheTestBoard() domain.Board {
	return domain.Board{Lists: []domain.TaskList{
		{ID: "la", Title: "Todo", Position: 0, Tasks: []domain.Task{
			{ID: "a0", Content: "alpha", ListID: "la", Position: 0},
		}},
	}}
}

func TestCacheFetchBoardMissThenHit(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	expected := cacheTestBoard()

	var calls int
	cache := NewCache(&stubBackend{
		fetchBoardFn: func(ctx context.Context) (domain.Board, error) {
			calls++
			return expected.Clone(), nil
		},
	}, client, time.Minute)

	board, err := cache.FetchBoard(ctx)
	if err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if !reflect.DeepEqual(board, expected) {
		t.Fatalf("unexpected board: %#v", board)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}
	if ttl := mr.TTL(consts.BoardCacheKey); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	cached, err := cache.FetchBoard(ctx)
	if err != nil {
		t.Fatalf("fetch cached board: %v", err)
	}
	if !reflect.DeepEqual(cached, expected) {
		t.Fatalf("unexpected cached board: %#v", cached)
	}
	if calls != 1 {
		t.Fatalf("expected cached fetch to avoid backend, calls=%d", calls)
	}
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := mr.Set(consts.BoardCacheKey, "{not json"); err != nil {
		t.Fatalf("seed corrupt entry: %v", err)
	}

	expected := cacheTestBoard()
	var calls int
	cache := NewCache(&stubBackend{
		fetchBoardFn: func(ctx context.Context) (domain.Board, error) {
			calls++
			return expected.Clone(), nil
		},
	}, client, time.Minute)

	board, err := cache.FetchBoard(ctx)
	if err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if !reflect.DeepEqual(board, expected) {
		t.Fatalf("unexpected board: %#v", board)
	}
	if calls != 1 {
		t.Fatalf("expected backend call, got %d", calls)
	}

	// The corrupt entry was replaced with the fresh snapshot.
	data, err := client.Get(ctx, consts.BoardCacheKey).Bytes()
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}
	var stored domain.Board
	if err := sonic.Unmarshal(data, &stored); err != nil {
		t.Fatalf("decode cache: %v", err)
	}
	if !reflect.DeepEqual(stored, expected) {
		t.Fatalf("unexpected cached snapshot: %#v", stored)
	}
}

func TestCacheZeroTTLSkipsStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	var calls int
	cache := NewCache(&stubBackend{
		fetchBoardFn: func(ctx context.Context) (domain.Board, error) {
			calls++
			return cacheTestBoard(), nil
		},
	}, client, 0)

	if _, err := cache.FetchBoard(ctx); err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if _, err := cache.FetchBoard(ctx); err != nil {
		t.Fatalf("fetch board: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected backend on every fetch, got %d calls", calls)
	}
	if mr.Exists(consts.BoardCacheKey) {
		t.Fatal("expected nothing cached with zero TTL")
	}
}

func TestCacheBackendErrorPropagates(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	wantErr := errors.New("tables offline")
	cache := NewCache(&stubBackend{
		fetchBoardFn: func(ctx context.Context) (domain.Board, error) {
			return domain.Board{}, wantErr
		},
	}, client, time.Minute)

	if _, err := cache.FetchBoard(context.Background()); !errors.Is(err, wantErr) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if mr.Exists(consts.BoardCacheKey) {
		t.Fatal("expected nothing cached after error")
	}
}

func TestCacheEnqueueEvictsSnapshot(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	if err := mr.Set(consts.BoardCacheKey, `{"lists":[]}`); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	var enqueued []domain.Command
	cache := NewCache(&stubBackend{
		enqueueCommandsFn: func(ctx context.Context, cmds []domain.Command) error {
			enqueued = cmds
			return nil
		},
	}, client, time.Minute)

	cmds := []domain.Command{{IdempotencyKey: "k1"}}
	if err := cache.EnqueueCommands(ctx, cmds); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(enqueued) != 1 {
		t.Fatalf("expected command forwarded, got %v", enqueued)
	}
	if mr.Exists(consts.BoardCacheKey) {
		t.Fatal("expected snapshot evicted after enqueue")
	}
}

func TestCacheEvict(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	if err := mr.Set(consts.BoardCacheKey, `{"lists":[]}`); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	cache := NewCache(&stubBackend{}, client, time.Minute)
	cache.Evict(context.Background())

	if mr.Exists(consts.BoardCacheKey) {
		t.Fatal("expected snapshot evicted")
	}
}
