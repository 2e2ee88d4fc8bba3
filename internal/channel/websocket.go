package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

type frame struct {
	text string
	err  error
}

// WebSocket is a Channel over a coder/websocket connection.
//
// Frames are read by a background goroutine so that an idle timeout leaves
// the connection open; the session can still tell the client it timed out.
type WebSocket struct {
	conn *websocket.Conn
	idle time.Duration

	frames    chan frame
	done      chan struct{}
	closeOnce sync.Once
}

var _ Channel = (*WebSocket)(nil)

// NewWebSocket wraps conn. An idle timeout <= 0 disables the inactivity limit.
func NewWebSocket(conn *websocket.Conn, idle time.Duration) *WebSocket {
	w := &WebSocket{
		conn:   conn,
		idle:   idle,
		frames: make(chan frame),
		done:   make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocket) readLoop() {
	defer close(w.frames)
	for {
		typ, data, err := w.conn.Read(context.Background())
		if err != nil {
			select {
			case w.frames <- frame{err: err}:
			case <-w.done:
			}
			return
		}
		if typ != websocket.MessageText {
			slog.Debug("Ignoring binary frame", "bytes", len(data))
			continue
		}
		select {
		case w.frames <- frame{text: string(data)}:
		case <-w.done:
			return
		}
	}
}

// Receive returns the next text frame, ErrIdle after the idle timeout, or
// ErrClosed once the client has disconnected.
func (w *WebSocket) Receive(ctx context.Context) (string, error) {
	var timeout <-chan time.Time
	if w.idle > 0 {
		t := time.NewTimer(w.idle)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case f, ok := <-w.frames:
		if !ok {
			return "", ErrClosed
		}
		if f.err != nil {
			return "", readError(f.err)
		}
		return f.text, nil
	case <-timeout:
		return "", ErrIdle
	case <-w.done:
		return "", ErrClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func readError(err error) error {
	if websocket.CloseStatus(err) != -1 {
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrClosed, err)
}

// Send writes text as one frame.
func (w *WebSocket) Send(ctx context.Context, text string) error {
	if err := w.conn.Write(ctx, websocket.MessageText, []byte(text)); err != nil {
		if websocket.CloseStatus(err) != -1 {
			return ErrClosed
		}
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// SendJSON marshals v and writes it as one frame.
func (w *WebSocket) SendJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return w.Send(ctx, string(data))
}

// Close stops the reader and closes the connection. Later calls are no-ops.
func (w *WebSocket) Close(status websocket.StatusCode, reason string) error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.conn.Close(status, reason)
	})
	return err
}
