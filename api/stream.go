package api

import (
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"boardsync/internal/consts"
)

const streamKeepalive = 30 * time.Second

func streamBoard(store Storage, broker *Broker) echo.HandlerFunc {
	return func(c echo.Context) error {
		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := broker.subscribe()
		defer broker.unsubscribe(ch)

		if err := writeBoardEvent(c, store, flusher); err != nil {
			return err
		}

		ticker := time.NewTicker(streamKeepalive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := c.Response().Write([]byte(":keepalive\n\n")); err != nil {
					return err
				}
				flusher.Flush()
			case <-ch:
				if err := writeBoardEvent(c, store, flusher); err != nil {
					return err
				}
			}
		}
	}
}

// writeBoardEvent sends one full-snapshot event. A failed fetch keeps the
// stream open; the subscriber catches up on the next notification.
func writeBoardEvent(c echo.Context, store Storage, flusher http.Flusher) error {
	board, err := store.FetchBoard(c.Request().Context())
	if err != nil {
		c.Logger().Error(err)
		return nil
	}
	data, err := sonic.Marshal(board)
	if err != nil {
		c.Logger().Error(err)
		return err
	}
	if _, err := c.Response().Write([]byte(consts.SSEDataPrefix)); err != nil {
		return err
	}
	if _, err := c.Response().Write(data); err != nil {
		return err
	}
	if _, err := c.Response().Write([]byte("\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
