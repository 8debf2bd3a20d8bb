package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"phishguard/internal/realtime"
)

const (
	pingInterval = 30 * time.Second
	writeWait    = 10 * time.Second

	// readyWait bounds how long a read waits for a view's first snapshot.
	readyWait = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // browser clients are served from other origins
	},
}

// snapshot is the only message a stream sends. Each one replaces the
// previous contents.
type snapshot[T any] struct {
	Type  string `json:"type"`
	Items []T    `json:"items"`
}

// openFunc opens the view a stream forwards.
type openFunc[T any] func(ctx context.Context, onChange func([]T)) (*realtime.View[T], error)

// serveStream upgrades the request and sends every snapshot of the view until
// the client goes away. Snapshots that arrive faster than the client reads
// are coalesced; only the latest is sent.
func serveStream[T any](c *gin.Context, logger *zap.Logger, open openFunc[T]) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan []T, 1)
	view, err := open(ctx, func(items []T) {
		select {
		case <-updates:
		default:
		}
		select {
		case updates <- items:
		default:
		}
	})
	if err != nil {
		logger.Error("Failed to open stream", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to open stream"})
		return
	}
	defer view.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// The client sends nothing useful; reading only detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case items := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snapshot[T]{Type: "snapshot", Items: items}); err != nil {
				logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// awaitReady waits for a long-lived view's first snapshot. It answers 503
// and returns false when the view is not ready in time.
func awaitReady(c *gin.Context, ready <-chan struct{}) bool {
	timer := time.NewTimer(readyWait)
	defer timer.Stop()
	select {
	case <-ready:
		return true
	case <-timer.C:
	case <-c.Request.Context().Done():
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Data is still loading, try again"})
	return false
}
