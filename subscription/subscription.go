package subscription

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// SubscribeChanges listens on the given Redis channels and invokes onChange
// with the channel name for every message until ctx is cancelled. A dropped
// server connection re-establishes the subscription; notifications published
// while disconnected are lost, the next one triggers a full refetch anyway.
func SubscribeChanges(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	channels []string,
	onChange func(channel string),
) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	for {
		sub := rc.Subscribe(ctx, channels...)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				onChange(msg.Channel)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
