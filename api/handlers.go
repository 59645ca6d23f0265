package api

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"boardsync/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, deduper Deduper, broker *Broker, logger *log.Logger) {
	e.GET("/api/board", getBoard(store, logger))
	e.POST("/api/commands", postCommands(store, deduper), GzipRequestMiddleware())
	e.POST("/api/board/drag", postDrag(store, deduper))
	e.GET("/api/board/stream", streamBoard(store, broker))
	e.GET("/healthz", healthz(store))

	initCommandSender(store, deduper, logger)
}

// pinger is satisfied by storage backends that can probe their transport.
type pinger interface {
	Ping(ctx context.Context) error
}

func healthz(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		if p, ok := store.(pinger); ok {
			if err := p.Ping(c.Request().Context()); err != nil {
				return c.String(http.StatusServiceUnavailable, err.Error())
			}
		}
		return c.NoContent(http.StatusOK)
	}
}

func getBoard(store Storage, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		fetchStart := time.Now()
		board, fetchErr := store.FetchBoard(ctx)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		metrics.SetListsReturned(len(board.Lists))
		tasks := 0
		for i := range board.Lists {
			tasks += len(board.Lists[i].Tasks)
		}
		metrics.SetTasksReturned(tasks)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, board)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postCommands(store Storage, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		lr := io.LimitReader(c.Request().Body, postCommandMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		cmds := make([]domain.Command, 0, 4)
		if err := dec.Decode(&cmds); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if len(cmds) == 0 {
			return c.JSON(http.StatusAccepted, postCommandResponse{})
		}

		keys := finalizeCommands(cmds)
		return acceptCommands(c, store, deduper, cmds, keys)
	}
}

func postDrag(store Storage, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		lr := io.LimitReader(c.Request().Body, dragEventMaxSize)
		dec := sonic.ConfigStd.NewDecoder(lr)
		dec.DisallowUnknownFields()

		var ev domain.DragEvent
		if err := dec.Decode(&ev); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		board, err := store.FetchBoard(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}

		// Dropped gestures (stale targets, out-of-range indices) are
		// accepted with no keys, matching the client's silent no-op.
		_, updates := domain.ApplyDrag(board, ev)
		if len(updates) == 0 {
			return c.JSON(http.StatusAccepted, postCommandResponse{})
		}

		cmds, err := moveCommands(updates)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "failed to build commands")
		}
		keys := finalizeCommands(cmds)
		return acceptCommands(c, store, deduper, cmds, keys)
	}
}

// moveCommands converts position updates into one move command per item.
func moveCommands(updates []domain.PositionUpdate) ([]domain.Command, error) {
	cmds := make([]domain.Command, 0, len(updates))
	for _, u := range updates {
		var (
			cmd domain.Command
			err error
		)
		if u.Kind == domain.KindTask {
			cmd, err = domain.NewCommand(domain.EntityTask, domain.CommandMoveTask, u.ID, domain.MoveTaskData{Position: u.Position, ListID: u.ListID})
		} else {
			cmd, err = domain.NewCommand(domain.EntityList, domain.CommandMoveList, u.ID, domain.MoveListData{Position: u.Position})
		}
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

// acceptCommands drops already-seen commands, then hands the remainder to the
// sender pool, falling back to an inline enqueue when the pool is saturated.
// The response always echoes the full key set so retrying clients can match.
func acceptCommands(c echo.Context, store Storage, deduper Deduper, cmds []domain.Command, keys []string) error {
	kept := cmds
	var added []string
	if deduper != nil {
		results, derr := deduper.AddMany(c.Request().Context(), keys)
		if derr != nil {
			// Dedupe is best effort; the updater tolerates redelivery.
			c.Logger().Warnf("dedupe unavailable, accepting batch: %v", derr)
		} else {
			kept = cmds[:0]
			for i, fresh := range results {
				if !fresh {
					continue
				}
				kept = append(kept, cmds[i])
				added = append(added, keys[i])
			}
			if len(kept) == 0 {
				return c.JSON(http.StatusAccepted, postCommandResponse{IdempotencyKeys: keys})
			}
		}
	}

	if tryEnqueueJob(enqueueJob{cmds: kept, added: added}) {
		return c.JSON(http.StatusAccepted, postCommandResponse{IdempotencyKeys: keys})
	}

	if globalLog != nil {
		globalLog.Warn("enqueue buffer saturated; processing inline")
	}

	enqueueCtx, cancel := context.WithTimeout(bg, enqueueTimeout)
	enqueueErr := store.EnqueueCommands(enqueueCtx, kept)
	cancel()

	if enqueueErr != nil {
		for _, k := range added {
			if rerr := deduper.Remove(bg, k); rerr != nil {
				c.Logger().Errorf("dedupe rollback failed: %v, key: %s", rerr, k)
			}
		}
		c.Logger().Errorf("enqueue inline failed: %v", enqueueErr)
		return c.String(http.StatusInternalServerError, "failed to enqueue commands")
	}

	return c.JSON(http.StatusAccepted, postCommandResponse{IdempotencyKeys: keys})
}
