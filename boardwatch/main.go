package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"boardsync/client"
	"boardsync/domain"
	"boardsync/internal/redisconn"
	"boardsync/storage"
)

// boardwatch tails the board from the console: it loads the current
// snapshot, prints it, and reprints on every change notification until
// interrupted.
func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	listsTableName := os.Getenv("LISTS_TABLE")
	tasksTableName := os.Getenv("TASKS_TABLE")
	commandQueueName := os.Getenv("COMMAND_QUEUE")
	if connStr == "" || listsTableName == "" || tasksTableName == "" || commandQueueName == "" {
		log.Fatal("missing storage config")
	}
	store, err := storage.New(connStr, listsTableName, tasksTableName, commandQueueName)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	redisConn := os.Getenv("REDIS_CONNECTION_STRING")
	if redisConn == "" {
		log.Fatal("missing redis config")
	}
	rc := redis.NewClient(redisconn.Options(redisConn))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	logger := log.New()
	gw := storage.NewGateway(store, rc, logger)
	cl := client.New(gw, logger)
	cl.OnReplace = printBoard

	if err := cl.Load(ctx); err != nil {
		log.Fatalf("load board: %v", err)
	}
	if err := cl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("watch: %v", err)
	}
}

func printBoard(b domain.Board) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- board @ %s --\n", time.Now().Format(time.TimeOnly))
	for _, l := range b.Lists {
		fmt.Fprintf(&sb, "%s\n", l.Title)
		for _, t := range l.Tasks {
			fmt.Fprintf(&sb, "  - %s\n", t.Content)
		}
	}
	if len(b.Lists) == 0 {
		sb.WriteString("(empty board)\n")
	}
	fmt.Print(sb.String())
}
