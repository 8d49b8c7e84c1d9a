// wsutil.go provides the reconnect-with-backoff and ping/read-deadline
// loop shared by the CEX and DEX WebSocket adapters. Grounded on the
// teacher's internal/exchange/ws.go (WSFeed.Run's exponential backoff,
// pingLoop, connectAndRead).
package venue

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsBackoffInitial = 1 * time.Second
	wsBackoffMax     = 30 * time.Second
)

// runWithBackoff repeatedly invokes connect until ctx is cancelled,
// doubling the wait between attempts up to wsBackoffMax and resetting to
// wsBackoffInitial after any connection that stayed up for at least one
// backoff period.
func runWithBackoff(ctx context.Context, logger *slog.Logger, name string, connect func(context.Context) error) error {
	backoff := wsBackoffInitial
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		start := time.Now()
		err := connect(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Warn("stream disconnected, reconnecting", "stream", name, "err", err, "backoff", backoff)
		}

		if time.Since(start) >= backoff {
			backoff = wsBackoffInitial
		} else {
			backoff *= 2
			if backoff > wsBackoffMax {
				backoff = wsBackoffMax
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// readLoop drives one connected websocket: a background ping ticker to
// keep the connection alive, a read-deadline refreshed on every message,
// and onMessage invoked per text/binary frame. Returns when the
// connection errors or ctx is cancelled.
func readLoop(ctx context.Context, conn *websocket.Conn, readTimeout, pingInterval time.Duration, onMessage func([]byte)) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		onMessage(data)
	}
}
