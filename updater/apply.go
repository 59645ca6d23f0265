package updater

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/internal/consts"
	"boardsync/storage"
)

// Store defines the row operations required to apply commands.
type Store interface {
	GetList(ctx context.Context, id string) (*storage.ListEntity, error)
	InsertList(ctx context.Context, ent storage.ListEntity) error
	UpdateList(ctx context.Context, upd storage.ListUpdate) error
	DeleteList(ctx context.Context, id string) error
	GetTask(ctx context.Context, id string) (*storage.TaskEntity, error)
	InsertTask(ctx context.Context, ent storage.TaskEntity) error
	UpdateTask(ctx context.Context, upd storage.TaskUpdate) error
	DeleteTask(ctx context.Context, id string) error
	TasksByList(ctx context.Context, listID string) ([]storage.TaskEntity, error)
}

// Applier applies queued commands to the durable board rows. Commands can
// arrive more than once and out of order, so every apply is tolerant:
// duplicate creates, deletes of missing rows and moves older than the row's
// last applied command are logged and skipped, not failed. Returned errors
// mean the command should be redelivered.
type Applier struct{ st Store }

func NewApplier(st Store) Applier { return Applier{st: st} }

func (a Applier) Apply(ctx context.Context, cmd domain.Command) error {
	switch cmd.Type {
	case domain.CommandCreateList:
		return a.createList(ctx, cmd)
	case domain.CommandDeleteList:
		return a.deleteList(ctx, cmd)
	case domain.CommandMoveList:
		return a.moveList(ctx, cmd)
	case domain.CommandCreateTask:
		return a.createTask(ctx, cmd)
	case domain.CommandDeleteTask:
		return a.deleteTask(ctx, cmd)
	case domain.CommandMoveTask:
		return a.moveTask(ctx, cmd)
	default:
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
}

func (a Applier) createList(ctx context.Context, cmd domain.Command) error {
	var data domain.CreateListData
	if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
		return fmt.Errorf("decode create-list data: %w", err)
	}
	ent := storage.ListEntity{
		Entity:        storage.Entity{PartitionKey: consts.BoardID, RowKey: cmd.EntityID},
		Title:         data.Title,
		Position:      data.Position,
		ChangedAt:     cmd.Timestamp,
		ChangedAtType: storage.EdmInt64,
	}
	if err := a.st.InsertList(ctx, ent); err != nil {
		if isStatus(err, 409) {
			log.WithField("list", cmd.EntityID).Warn("duplicate create-list, skipping")
			return nil
		}
		return err
	}
	return nil
}

func (a Applier) deleteList(ctx context.Context, cmd domain.Command) error {
	if err := a.st.DeleteList(ctx, cmd.EntityID); err != nil {
		if !isStatus(err, 404) {
			return err
		}
		log.WithField("list", cmd.EntityID).Warn("delete-list for missing row, skipping")
	}
	// Deleting a list takes its tasks with it; the rows are never
	// reassigned to another list.
	tasks, err := a.st.TasksByList(ctx, cmd.EntityID)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := a.st.DeleteTask(ctx, t.RowKey); err != nil && !isStatus(err, 404) {
			return err
		}
	}
	return nil
}

func (a Applier) moveList(ctx context.Context, cmd domain.Command) error {
	var data domain.MoveListData
	if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
		return fmt.Errorf("decode move-list data: %w", err)
	}
	ent, err := a.st.GetList(ctx, cmd.EntityID)
	if err != nil {
		return err
	}
	if ent == nil {
		log.WithField("list", cmd.EntityID).Warn("move-list for missing row, skipping")
		return nil
	}
	if cmd.Timestamp <= ent.ChangedAt {
		log.WithFields(log.Fields{"list": cmd.EntityID, "ts": cmd.Timestamp, "current": ent.ChangedAt}).Warn("stale move-list, skipping")
		return nil
	}
	pos := data.Position
	ts := cmd.Timestamp
	tsType := storage.EdmInt64
	return a.st.UpdateList(ctx, storage.ListUpdate{
		Entity:        storage.Entity{PartitionKey: consts.BoardID, RowKey: cmd.EntityID},
		Position:      &pos,
		ChangedAt:     &ts,
		ChangedAtType: &tsType,
	})
}

func (a Applier) createTask(ctx context.Context, cmd domain.Command) error {
	var data domain.CreateTaskData
	if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
		return fmt.Errorf("decode create-task data: %w", err)
	}
	// The command carries no position; the task lands at the end of its
	// list as of apply time.
	siblings, err := a.st.TasksByList(ctx, data.ListID)
	if err != nil {
		return err
	}
	ent := storage.TaskEntity{
		Entity:        storage.Entity{PartitionKey: consts.BoardID, RowKey: cmd.EntityID},
		Content:       data.Content,
		ListID:        data.ListID,
		Position:      len(siblings),
		ChangedAt:     cmd.Timestamp,
		ChangedAtType: storage.EdmInt64,
	}
	if err := a.st.InsertTask(ctx, ent); err != nil {
		if isStatus(err, 409) {
			log.WithField("task", cmd.EntityID).Warn("duplicate create-task, skipping")
			return nil
		}
		return err
	}
	return nil
}

func (a Applier) deleteTask(ctx context.Context, cmd domain.Command) error {
	if err := a.st.DeleteTask(ctx, cmd.EntityID); err != nil {
		if !isStatus(err, 404) {
			return err
		}
		log.WithField("task", cmd.EntityID).Warn("delete-task for missing row, skipping")
	}
	return nil
}

func (a Applier) moveTask(ctx context.Context, cmd domain.Command) error {
	var data domain.MoveTaskData
	if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
		return fmt.Errorf("decode move-task data: %w", err)
	}
	ent, err := a.st.GetTask(ctx, cmd.EntityID)
	if err != nil {
		return err
	}
	if ent == nil {
		log.WithField("task", cmd.EntityID).Warn("move-task for missing row, skipping")
		return nil
	}
	if cmd.Timestamp <= ent.ChangedAt {
		log.WithFields(log.Fields{"task": cmd.EntityID, "ts": cmd.Timestamp, "current": ent.ChangedAt}).Warn("stale move-task, skipping")
		return nil
	}
	pos := data.Position
	ts := cmd.Timestamp
	tsType := storage.EdmInt64
	upd := storage.TaskUpdate{
		Entity:        storage.Entity{PartitionKey: consts.BoardID, RowKey: cmd.EntityID},
		Position:      &pos,
		ChangedAt:     &ts,
		ChangedAtType: &tsType,
	}
	if data.ListID != "" && data.ListID != ent.ListID {
		listID := data.ListID
		upd.ListID = &listID
	}
	return a.st.UpdateTask(ctx, upd)
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}
