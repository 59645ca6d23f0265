package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/internal/consts"
	"boardsync/subscription"
)

// Gateway adapts the storage layer to the board client contract: reads
// assemble the full board, writes become queued commands, and the change
// subscription bridges the Redis channels. Writes are acknowledged once the
// command is enqueued, not once it is applied.
type Gateway struct {
	backend backend
	redis   *redis.Client
	logger  *log.Logger
}

// NewGateway creates a Gateway on top of a Storage or Cache backend.
func NewGateway(b backend, client *redis.Client, logger *log.Logger) *Gateway {
	if b == nil {
		panic("storage.NewGateway: backend is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Gateway{backend: b, redis: client, logger: logger}
}

func (g *Gateway) FetchBoard(ctx context.Context) (domain.Board, error) {
	return g.backend.FetchBoard(ctx)
}

func (g *Gateway) CreateList(ctx context.Context, id, title string, position int) error {
	return g.send(ctx, domain.EntityList, domain.CommandCreateList, id, domain.CreateListData{Title: title, Position: position})
}

func (g *Gateway) DeleteList(ctx context.Context, id string) error {
	return g.send(ctx, domain.EntityList, domain.CommandDeleteList, id, nil)
}

func (g *Gateway) CreateTask(ctx context.Context, id, content, listID string) error {
	return g.send(ctx, domain.EntityTask, domain.CommandCreateTask, id, domain.CreateTaskData{Content: content, ListID: listID})
}

func (g *Gateway) DeleteTask(ctx context.Context, id string) error {
	return g.send(ctx, domain.EntityTask, domain.CommandDeleteTask, id, nil)
}

func (g *Gateway) UpdatePosition(ctx context.Context, kind domain.ItemKind, id string, position int, parentID string) error {
	if kind == domain.KindTask {
		return g.send(ctx, domain.EntityTask, domain.CommandMoveTask, id, domain.MoveTaskData{Position: position, ListID: parentID})
	}
	return g.send(ctx, domain.EntityList, domain.CommandMoveList, id, domain.MoveListData{Position: position})
}

func (g *Gateway) send(ctx context.Context, entityType, cmdType, entityID string, data any) error {
	cmd, err := domain.NewCommand(entityType, cmdType, entityID, data)
	if err != nil {
		return fmt.Errorf("build %s command: %w", cmdType, err)
	}
	cmd.IdempotencyKey = uuid.NewString()
	cmd.ID = cmd.IdempotencyKey
	cmd.Timestamp = domain.NextTimestamp()
	return g.backend.EnqueueCommands(ctx, []domain.Command{cmd})
}

// Subscribe listens on the board change channels and invokes onChange with
// the channel name for every notification. It blocks until ctx is cancelled
// and then releases the subscription.
func (g *Gateway) Subscribe(ctx context.Context, onChange func(channel string)) error {
	if g.redis == nil {
		return errors.New("gateway has no redis client")
	}
	subscription.SubscribeChanges(ctx, g.logger, g.redis, []string{consts.ListsChannel, consts.TasksChannel}, onChange)
	return ctx.Err()
}
