package updater

import (
	"context"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

type commandApplier interface {
	Apply(ctx context.Context, cmd domain.Command) error
}

type cacheEvictor interface {
	Evict(ctx context.Context)
}

// processCommand applies one command, drops the stale board snapshot, and
// notifies subscribers on the channel matching the command's entity kind.
// Subscribers refetch the whole board, so the published payload is only a
// hint about what changed.
func processCommand(ctx context.Context, h commandApplier, cache cacheEvictor, rc *redis.Client, listsChannel, tasksChannel string, cmd domain.Command, payload string) error {
	if err := h.Apply(ctx, cmd); err != nil {
		return err
	}
	if cache != nil {
		cache.Evict(ctx)
	}
	channel := tasksChannel
	if cmd.EntityType == domain.EntityList {
		channel = listsChannel
	}
	if err := rc.Publish(ctx, channel, payload).Err(); err != nil {
		log.Errorf("Unable to publish update for %s to %s", cmd.EntityType, channel)
	}
	return nil
}
