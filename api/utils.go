package api

import (
	"strconv"

	"boardsync/domain"
)

// finalizeCommands stamps every command in the batch with a unique timestamp
// from one reserved range, fills in missing idempotency keys and aligns IDs
// with them. It returns the keys in batch order.
func finalizeCommands(cmds []domain.Command) []string {
	if len(cmds) == 0 {
		return nil
	}
	start := domain.NextTimestampRange(len(cmds))
	keys := make([]string, len(cmds))
	for i := range cmds {
		cmds[i].Timestamp = start + int64(i)
		if cmds[i].IdempotencyKey == "" {
			cmds[i].IdempotencyKey = strconv.FormatInt(cmds[i].Timestamp, 36)
		}
		cmds[i].ID = cmds[i].IdempotencyKey
		keys[i] = cmds[i].IdempotencyKey
	}
	return keys
}
