package updater

import (
	"context"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Queue is the command queue side of the updater's storage dependency.
type Queue interface {
	Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error)
	DeleteMessage(ctx context.Context, id, receipt string) error
}

// Updater drains the command queue and applies each command to the board
// rows, one message at a time.
type Updater struct {
	queue        Queue
	applier      commandApplier
	cache        cacheEvictor
	redis        *redis.Client
	listsChannel string
	tasksChannel string
	pollInterval time.Duration
	logger       *log.Logger
}

func New(queue Queue, applier commandApplier, cache cacheEvictor, rc *redis.Client, listsChannel, tasksChannel string, logger *log.Logger) *Updater {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Updater{
		queue:        queue,
		applier:      applier,
		cache:        cache,
		redis:        rc,
		listsChannel: listsChannel,
		tasksChannel: tasksChannel,
		pollInterval: time.Second,
		logger:       logger,
	}
}

// Run polls the queue until ctx is cancelled. Messages that cannot be
// decoded are deleted so they do not wedge the queue; failed applies keep
// the message invisible until the queue redelivers it.
func (u *Updater) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := u.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			u.logger.WithError(err).Error("dequeue failed")
			u.sleep(ctx)
			continue
		}
		if msg == nil {
			u.sleep(ctx)
			continue
		}
		u.handle(ctx, msg)
	}
}

func (u *Updater) handle(ctx context.Context, msg *azqueue.DequeuedMessage) {
	if msg.MessageText == nil || msg.MessageID == nil || msg.PopReceipt == nil {
		u.logger.Error("dropping message without id, receipt or body")
		return
	}
	payload := *msg.MessageText

	var env domain.CommandEnvelope
	if err := sonic.UnmarshalString(payload, &env); err != nil {
		u.logger.WithError(err).Error("dropping malformed command message")
		u.deleteMessage(ctx, msg)
		return
	}

	if err := processCommand(ctx, u.applier, u.cache, u.redis, u.listsChannel, u.tasksChannel, env.Command, payload); err != nil {
		u.logger.WithError(err).WithFields(log.Fields{
			"type":   env.Command.Type,
			"entity": env.Command.EntityID,
		}).Error("apply failed, leaving message for redelivery")
		return
	}
	u.deleteMessage(ctx, msg)
}

func (u *Updater) deleteMessage(ctx context.Context, msg *azqueue.DequeuedMessage) {
	if err := u.queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt); err != nil {
		u.logger.WithError(err).Error("delete message failed")
	}
}

func (u *Updater) sleep(ctx context.Context) {
	t := time.NewTimer(u.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
