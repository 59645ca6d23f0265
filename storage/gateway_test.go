package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"boardsync/domain"
	"boardsync/internal/consts"
)

type recordingBackend struct {
	mu   sync.Mutex
	cmds []domain.Command
}

func (r *recordingBackend) FetchBoard(ctx context.Context) (domain.Board, error) {
	return domain.Board{}, nil
}

func (r *recordingBackend) EnqueueCommands(ctx context.Context, cmds []domain.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmds...)
	return nil
}

func (r *recordingBackend) commands() []domain.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Command, len(r.cmds))
	copy(out, r.cmds)
	return out
}

func TestGatewayCreateListBuildsCommand(t *testing.T) {
	rb := &recordingBackend{}
	gw := NewGateway(rb, nil, nil)

	if err := gw.CreateList(context.Background(), "l1", "Todo", 3); err != nil {
		t.Fatalf("create list: %v", err)
	}

	cmds := rb.commands()
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	cmd := cmds[0]
	if cmd.EntityType != domain.EntityList || cmd.Type != domain.CommandCreateList || cmd.EntityID != "l1" {
		t.Fatalf("unexpected command header: %+v", cmd)
	}
	if cmd.IdempotencyKey == "" || cmd.ID != cmd.IdempotencyKey {
		t.Fatalf("expected idempotency key mirrored into id, got %+v", cmd)
	}
	if cmd.Timestamp == 0 {
		t.Fatal("expected timestamp assigned")
	}

	var data domain.CreateListData
	if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if data.Title != "Todo" || data.Position != 3 {
		t.Fatalf("unexpected payload: %+v", data)
	}
}

func TestGatewayUpdatePositionByKind(t *testing.T) {
	rb := &recordingBackend{}
	gw := NewGateway(rb, nil, nil)

	if err := gw.UpdatePosition(context.Background(), domain.KindTask, "t1", 2, "lb"); err != nil {
		t.Fatalf("update task position: %v", err)
	}
	if err := gw.UpdatePosition(context.Background(), domain.KindList, "l1", 1, ""); err != nil {
		t.Fatalf("update list position: %v", err)
	}

	cmds := rb.commands()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}

	if cmds[0].Type != domain.CommandMoveTask || cmds[0].EntityID != "t1" {
		t.Fatalf("unexpected task command: %+v", cmds[0])
	}
	var taskData domain.MoveTaskData
	if err := sonic.Unmarshal(cmds[0].Data, &taskData); err != nil {
		t.Fatalf("decode task payload: %v", err)
	}
	if taskData.Position != 2 || taskData.ListID != "lb" {
		t.Fatalf("unexpected task payload: %+v", taskData)
	}

	if cmds[1].Type != domain.CommandMoveList || cmds[1].EntityID != "l1" {
		t.Fatalf("unexpected list command: %+v", cmds[1])
	}
	var listData domain.MoveListData
	if err := sonic.Unmarshal(cmds[1].Data, &listData); err != nil {
		t.Fatalf("decode list payload: %v", err)
	}
	if listData.Position != 1 {
		t.Fatalf("unexpected list payload: %+v", listData)
	}
}

func TestGatewayDeleteCommandsCarryNoPayload(t *testing.T) {
	rb := &recordingBackend{}
	gw := NewGateway(rb, nil, nil)

	if err := gw.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := gw.DeleteList(context.Background(), "l1"); err != nil {
		t.Fatalf("delete list: %v", err)
	}

	cmds := rb.commands()
	if len(cmds) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(cmds))
	}
	for _, cmd := range cmds {
		if len(cmd.Data) != 0 {
			t.Fatalf("expected empty payload, got %s", string(cmd.Data))
		}
	}
}

func TestGatewayTimestampsIncrease(t *testing.T) {
	rb := &recordingBackend{}
	gw := NewGateway(rb, nil, nil)

	for i := 0; i < 5; i++ {
		if err := gw.DeleteTask(context.Background(), "t1"); err != nil {
			t.Fatalf("delete task: %v", err)
		}
	}

	cmds := rb.commands()
	for i := 1; i < len(cmds); i++ {
		if cmds[i].Timestamp <= cmds[i-1].Timestamp {
			t.Fatalf("expected increasing timestamps, got %d then %d", cmds[i-1].Timestamp, cmds[i].Timestamp)
		}
	}
}

func TestGatewaySubscribeReceivesChanges(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer m.Close()
	rc := redis.NewClient(&redis.Options{Addr: m.Addr()})
	defer rc.Close()

	logger, _ := test.NewNullLogger()
	gw := NewGateway(&recordingBackend{}, rc, logger)

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = gw.Subscribe(ctx, func(channel string) {
			mu.Lock()
			got = append(got, channel)
			mu.Unlock()
		})
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)

	if err := rc.Publish(context.Background(), consts.ListsChannel, "x").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := rc.Publish(context.Background(), consts.TasksChannel, "y").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	count := len(got)
	mu.Unlock()
	if count != 2 {
		t.Fatalf("expected 2 notifications, got %d", count)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not exit")
	}
}

func TestGatewaySubscribeWithoutRedis(t *testing.T) {
	gw := NewGateway(&recordingBackend{}, nil, nil)
	if err := gw.Subscribe(context.Background(), func(string) {}); err == nil {
		t.Fatal("expected error without redis client")
	}
}
