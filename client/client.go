package client

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Gateway is the remote board store the client works against.
type Gateway interface {
	FetchBoard(ctx context.Context) (domain.Board, error)
	CreateList(ctx context.Context, id, title string, position int) error
	DeleteList(ctx context.Context, id string) error
	CreateTask(ctx context.Context, id, content, listID string) error
	DeleteTask(ctx context.Context, id string) error
	UpdatePosition(ctx context.Context, kind domain.ItemKind, id string, position int, parentID string) error
	// Subscribe blocks until ctx is cancelled, invoking onChange with the
	// channel name for every remote change notification.
	Subscribe(ctx context.Context, onChange func(channel string)) error
}

// Client owns the local board snapshot and keeps it converging toward the
// remote store. Gestures mutate the snapshot optimistically and enqueue
// writes; remote change notifications trigger a refetch that replaces the
// snapshot wholesale, whatever it currently holds.
type Client struct {
	gw     Gateway
	store  *Store
	logger *log.Logger

	// OnReplace, when set, observes every installed snapshot.
	OnReplace func(domain.Board)
}

func New(gw Gateway, logger *log.Logger) *Client {
	if gw == nil {
		panic("client.New: gateway is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{gw: gw, store: NewStore(), logger: logger}
}

// Board returns the current local snapshot.
func (c *Client) Board() domain.Board {
	return c.store.Board()
}

// Load fetches the initial snapshot. Unlike the reconcile path the error is
// returned, so callers can fail startup instead of showing an empty board.
func (c *Client) Load(ctx context.Context) error {
	b, err := c.gw.FetchBoard(ctx)
	if err != nil {
		return fmt.Errorf("fetch board: %w", err)
	}
	c.replace(b)
	return nil
}

// Run holds the change subscription for the life of ctx, refetching and
// replacing the snapshot on every notification. A refetch started by an
// earlier notification may complete after a later one and still win; the
// next notification converges the snapshot again, so ordering guarantees
// are deliberately not provided.
func (c *Client) Run(ctx context.Context) error {
	return c.gw.Subscribe(ctx, func(channel string) {
		c.refresh(ctx, channel)
	})
}

func (c *Client) refresh(ctx context.Context, channel string) {
	b, err := c.gw.FetchBoard(ctx)
	if err != nil {
		// Keep the previous snapshot; the next notification retries.
		c.logger.WithError(err).WithField("channel", channel).Error("board refetch failed")
		return
	}
	c.replace(b)
}

// HandleDrag applies a completed drag gesture to the local snapshot and
// persists the resulting positions one write at a time. Gestures referencing
// stale containers or out-of-range indices are dropped. Failed writes are
// logged and never rolled back; the local snapshot stays ahead until a
// reconcile converges it.
func (c *Client) HandleDrag(ctx context.Context, ev domain.DragEvent) {
	next, updates := domain.ApplyDrag(c.store.Board(), ev)
	if len(updates) == 0 {
		return
	}
	c.replace(next)
	for _, u := range updates {
		if err := c.gw.UpdatePosition(ctx, u.Kind, u.ID, u.Position, u.ListID); err != nil {
			c.logger.WithError(err).WithFields(log.Fields{
				"kind":     u.Kind,
				"id":       u.ID,
				"position": u.Position,
			}).Error("position update failed")
		}
	}
}

// CreateList appends a list with the given title to the board and returns
// its generated id. Empty titles abort silently, as a cancelled input would.
func (c *Client) CreateList(ctx context.Context, title string) string {
	if title == "" {
		return ""
	}
	b := c.store.Board().Clone()
	id := uuid.NewString()
	pos := len(b.Lists)
	b.Lists = append(b.Lists, domain.TaskList{ID: id, Title: title, Position: pos, Tasks: []domain.Task{}})
	c.replace(b)
	if err := c.gw.CreateList(ctx, id, title, pos); err != nil {
		c.logger.WithError(err).WithField("list", id).Error("create list failed")
	}
	return id
}

// CreateTask appends a task to the given list and returns its generated id.
// Empty content or a list missing from the snapshot aborts silently.
func (c *Client) CreateTask(ctx context.Context, listID, content string) string {
	if content == "" {
		return ""
	}
	b := c.store.Board().Clone()
	i := b.FindList(listID)
	if i < 0 {
		return ""
	}
	id := uuid.NewString()
	l := &b.Lists[i]
	l.Tasks = append(l.Tasks, domain.Task{ID: id, Content: content, ListID: listID, Position: len(l.Tasks)})
	c.replace(b)
	if err := c.gw.CreateTask(ctx, id, content, listID); err != nil {
		c.logger.WithError(err).WithField("task", id).Error("create task failed")
	}
	return id
}

// DeleteList removes the list and everything in it from the local snapshot.
// Remaining list positions are left as they are until the next reorder or
// reconcile; display order comes from the slice, not the position values.
func (c *Client) DeleteList(ctx context.Context, id string) {
	b := c.store.Board().Clone()
	i := b.FindList(id)
	if i < 0 {
		return
	}
	b.Lists = append(b.Lists[:i], b.Lists[i+1:]...)
	c.replace(b)
	if err := c.gw.DeleteList(ctx, id); err != nil {
		c.logger.WithError(err).WithField("list", id).Error("delete list failed")
	}
}

// DeleteTask removes the task from whichever list holds it. Unknown ids are
// ignored.
func (c *Client) DeleteTask(ctx context.Context, id string) {
	b := c.store.Board().Clone()
	for i := range b.Lists {
		for j := range b.Lists[i].Tasks {
			if b.Lists[i].Tasks[j].ID != id {
				continue
			}
			l := &b.Lists[i]
			l.Tasks = append(l.Tasks[:j], l.Tasks[j+1:]...)
			c.replace(b)
			if err := c.gw.DeleteTask(ctx, id); err != nil {
				c.logger.WithError(err).WithField("task", id).Error("delete task failed")
			}
			return
		}
	}
}

func (c *Client) replace(b domain.Board) {
	c.store.Replace(b)
	if c.OnReplace != nil {
		c.OnReplace(b)
	}
}
