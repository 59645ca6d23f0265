package storage

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
	"boardsync/internal/consts"
)

const (
	defaultQueueConcurrency = 8
	queuePerCPU             = 10
	maxQueueConcurrency     = 64
)

// commandQueue is the subset of the azqueue client the storage layer uses.
type commandQueue interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
	DequeueMessage(ctx context.Context, o *azqueue.DequeueMessageOptions) (azqueue.DequeueMessagesResponse, error)
	DeleteMessage(ctx context.Context, messageID string, popReceipt string, o *azqueue.DeleteMessageOptions) (azqueue.DeleteMessageResponse, error)
	GetProperties(ctx context.Context, o *azqueue.GetQueuePropertiesOptions) (azqueue.GetQueuePropertiesResponse, error)
}

// Storage provides access to the board tables and the command queue.
type Storage struct {
	listTable        *aztables.Client
	taskTable        *aztables.Client
	commandQueue     commandQueue
	queueConcurrency int
}

// New creates a Storage instance from the given connection string.
func New(connStr, listsTable, tasksTable, commandQueueName string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	lt := svc.NewClient(listsTable)
	tt := svc.NewClient(tasksTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	cq, err := azqueue.NewQueueClientFromConnectionString(connStr, commandQueueName, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		listTable:        lt,
		taskTable:        tt,
		commandQueue:     cq,
		queueConcurrency: queueConcurrencyForCPU(runtime.NumCPU()),
	}, nil
}

func queueConcurrencyForCPU(cpu int) int {
	if cpu <= 0 {
		return defaultQueueConcurrency
	}
	n := cpu * queuePerCPU
	if n > maxQueueConcurrency {
		return maxQueueConcurrency
	}
	return n
}

// QueueConcurrency reports the configured limit for concurrent queue sends.
func (s *Storage) QueueConcurrency() int {
	return s.queueConcurrency
}

// Ping verifies the command queue is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.commandQueue.GetProperties(ctx, nil)
	return err
}

// FetchBoard retrieves every list and task row and assembles them into a
// board ordered by persisted position.
func (s *Storage) FetchBoard(ctx context.Context) (domain.Board, error) {
	filter := "PartitionKey eq '" + consts.BoardID + "'"

	listPager := s.listTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	lists := []ListEntity{}
	for listPager.More() {
		resp, err := listPager.NextPage(ctx)
		if err != nil {
			return domain.Board{}, err
		}
		for _, raw := range resp.Entities {
			var ent ListEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return domain.Board{}, err
			}
			lists = append(lists, ent)
		}
	}

	taskPager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []TaskEntity{}
	for taskPager.More() {
		resp, err := taskPager.NextPage(ctx)
		if err != nil {
			return domain.Board{}, err
		}
		for _, raw := range resp.Entities {
			var ent TaskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return domain.Board{}, err
			}
			tasks = append(tasks, ent)
		}
	}

	return assembleBoard(lists, tasks), nil
}

// assembleBoard orders lists and tasks by persisted position, row key as the
// tie break, and groups tasks under their owning lists. Tasks referencing a
// missing list are skipped; they belong to a list deleted mid-fetch.
func assembleBoard(lists []ListEntity, tasks []TaskEntity) domain.Board {
	sort.Slice(lists, func(i, j int) bool {
		if lists[i].Position != lists[j].Position {
			return lists[i].Position < lists[j].Position
		}
		return lists[i].RowKey < lists[j].RowKey
	})
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Position != tasks[j].Position {
			return tasks[i].Position < tasks[j].Position
		}
		return tasks[i].RowKey < tasks[j].RowKey
	})

	board := domain.Board{Lists: make([]domain.TaskList, len(lists))}
	index := make(map[string]int, len(lists))
	for i, l := range lists {
		board.Lists[i] = domain.TaskList{ID: l.RowKey, Title: l.Title, Position: l.Position, Tasks: []domain.Task{}}
		index[l.RowKey] = i
	}
	for _, t := range tasks {
		i, ok := index[t.ListID]
		if !ok {
			log.WithFields(log.Fields{"task": t.RowKey, "list": t.ListID}).Debug("skipping task with unknown list")
			continue
		}
		board.Lists[i].Tasks = append(board.Lists[i].Tasks, domain.Task{
			ID:       t.RowKey,
			Content:  t.Content,
			ListID:   t.ListID,
			Position: t.Position,
		})
	}
	return board
}

// EnqueueCommands sends the given commands to the command queue. Sends run
// concurrently up to the configured limit; each command targets its own row
// so relative order between them does not matter.
func (s *Storage) EnqueueCommands(ctx context.Context, cmds []domain.Command) error {
	if len(cmds) == 0 {
		return nil
	}

	payloads := make([]string, len(cmds))
	for i, cmd := range cmds {
		env := domain.CommandEnvelope{BoardID: consts.BoardID, Command: cmd}
		data, err := sonic.Marshal(env)
		if err != nil {
			return err
		}
		payloads[i] = string(data)
	}

	conc := s.queueConcurrency
	if conc <= 0 {
		conc = 1
	}
	if conc > len(payloads) {
		conc = len(payloads)
	}

	sem := make(chan struct{}, conc)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, payload := range payloads {
		sem <- struct{}{}
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := s.commandQueue.EnqueueMessage(ctx, p, nil); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(payload)
	}
	wg.Wait()
	return firstErr
}

// Dequeue retrieves a single message from the command queue.
func (s *Storage) Dequeue(ctx context.Context) (*azqueue.DequeuedMessage, error) {
	resp, err := s.commandQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	return resp.Messages[0], nil
}

// DeleteMessage removes a processed message from the queue.
func (s *Storage) DeleteMessage(ctx context.Context, id, receipt string) error {
	_, err := s.commandQueue.DeleteMessage(ctx, id, receipt, nil)
	return err
}

// GetList retrieves a list row if present.
func (s *Storage) GetList(ctx context.Context, id string) (*ListEntity, error) {
	ent, err := s.listTable.GetEntity(ctx, consts.BoardID, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var list ListEntity
	if err := json.Unmarshal(ent.Value, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// InsertList adds a new list row. Conflicts surface as a 409 response error.
func (s *Storage) InsertList(ctx context.Context, ent ListEntity) error {
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.listTable.AddEntity(ctx, payload, nil)
	}
	return err
}

// UpdateList merges changes into an existing list row.
func (s *Storage) UpdateList(ctx context.Context, upd ListUpdate) error {
	payload, err := json.Marshal(upd)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.listTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// DeleteList removes a list row.
func (s *Storage) DeleteList(ctx context.Context, id string) error {
	_, err := s.listTable.DeleteEntity(ctx, consts.BoardID, id, nil)
	return err
}

// GetTask retrieves a task row if present.
func (s *Storage) GetTask(ctx context.Context, id string) (*TaskEntity, error) {
	ent, err := s.taskTable.GetEntity(ctx, consts.BoardID, id, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.StatusCode == 404 {
			return nil, nil
		}
		return nil, err
	}
	var task TaskEntity
	if err := json.Unmarshal(ent.Value, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// InsertTask adds a new task row. Conflicts surface as a 409 response error.
func (s *Storage) InsertTask(ctx context.Context, ent TaskEntity) error {
	payload, err := json.Marshal(ent)
	if err == nil {
		_, err = s.taskTable.AddEntity(ctx, payload, nil)
	}
	return err
}

// UpdateTask merges changes into an existing task row.
func (s *Storage) UpdateTask(ctx context.Context, upd TaskUpdate) error {
	payload, err := json.Marshal(upd)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// DeleteTask removes a task row.
func (s *Storage) DeleteTask(ctx context.Context, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, consts.BoardID, id, nil)
	return err
}

// TasksByList retrieves the task rows belonging to one list.
func (s *Storage) TasksByList(ctx context.Context, listID string) ([]TaskEntity, error) {
	filter := "PartitionKey eq '" + consts.BoardID + "' and ListId eq '" + listID + "'"
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []TaskEntity{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range resp.Entities {
			var ent TaskEntity
			if err := json.Unmarshal(raw, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent)
		}
	}
	return tasks, nil
}
